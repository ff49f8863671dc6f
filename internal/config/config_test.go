package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, ".agentsync")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RulesDir != ".agentsync/rules" || cfg.StatePath != ".agentsync/state.db" {
		t.Errorf("paths = %s, %s", cfg.RulesDir, cfg.StatePath)
	}
	if cfg.AutoSync {
		t.Error("AutoSync should default to false")
	}
	if cfg.Debounce != time.Second {
		t.Errorf("Debounce = %s, want 1s", cfg.Debounce)
	}
	if cfg.Log.Level != "info" || cfg.Log.MaxSizeMB != 10 || cfg.Log.MaxBackups != 3 || cfg.Log.MaxAgeDays != 28 {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.File != "" {
		t.Errorf("File = %q, want none", cfg.File)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "config.yaml", `
auto_sync: true
debounce: 250ms
tools: [claude, cursor]
ignore_patterns:
  - generated/
log:
  level: debug
  file: .agentsync/agentsync.log
`)

	cfg, err := Load(root, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.AutoSync || cfg.Debounce != 250*time.Millisecond {
		t.Errorf("AutoSync = %v, Debounce = %s", cfg.AutoSync, cfg.Debounce)
	}
	if len(cfg.Tools) != 2 || cfg.Tools[1] != "cursor" {
		t.Errorf("Tools = %v", cfg.Tools)
	}
	if len(cfg.IgnorePatterns) != 1 || cfg.IgnorePatterns[0] != "generated/" {
		t.Errorf("IgnorePatterns = %v", cfg.IgnorePatterns)
	}
	if cfg.Log.Level != "debug" || cfg.Log.File != ".agentsync/agentsync.log" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if filepath.Base(cfg.File) != "config.yaml" {
		t.Errorf("File = %q", cfg.File)
	}
}

func TestLoad_TOMLFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "config.toml", "rules_dir = \"rules\"\n\n[log]\nmax_backups = 7\n")

	cfg, err := Load(root, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RulesDir != "rules" || cfg.Log.MaxBackups != 7 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "config.yaml", "auto_sync: false\nlog:\n  level: warn\n")
	t.Setenv("AGENTSYNC_AUTO_SYNC", "true")
	t.Setenv("AGENTSYNC_LOG_LEVEL", "error")

	cfg, err := Load(root, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.AutoSync || cfg.Log.Level != "error" {
		t.Errorf("AutoSync = %v, Log.Level = %s", cfg.AutoSync, cfg.Log.Level)
	}
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "config.yaml", "debounce: 5s\n")
	t.Setenv("AGENTSYNC_DEBOUNCE", "3s")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Duration("debounce", time.Second, "")
	flags.Bool("auto-sync", false, "")
	if err := flags.Parse([]string{"--debounce=100ms"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(root, flags)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Debounce != 100*time.Millisecond {
		t.Errorf("Debounce = %s, want 100ms", cfg.Debounce)
	}
	if cfg.AutoSync {
		t.Error("unset flag default must not override config")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad level", "log:\n  level: loud\n"},
		{"negative debounce", "debounce: -1s\n"},
		{"empty rules dir", "rules_dir: \"\"\n"},
		{"malformed yaml", "auto_sync: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeConfig(t, root, "config.yaml", tt.content)
			if _, err := Load(root, nil); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestPath(t *testing.T) {
	root := filepath.FromSlash("/work/app")
	if got := Path(root, ".agentsync/state.db"); got != filepath.Join(root, ".agentsync", "state.db") {
		t.Errorf("Path() = %s", got)
	}
	abs := filepath.FromSlash("/var/lib/state.db")
	if got := Path(root, abs); got != abs {
		t.Errorf("Path(abs) = %s", got)
	}
	if got := Path(root, ""); got != "" {
		t.Errorf("Path(empty) = %q", got)
	}
}
