// Package config loads agentsync settings from .agentsync/config.{yaml,toml,json},
// AGENTSYNC_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AGENTSYNC_AUTO_SYNC.
const EnvPrefix = "AGENTSYNC"

// Config is the resolved configuration of one project.
type Config struct {
	RulesDir       string        `mapstructure:"rules_dir"`
	StatePath      string        `mapstructure:"state_path"`
	ToolsFile      string        `mapstructure:"tools_file"`
	AutoSync       bool          `mapstructure:"auto_sync"`
	Debounce       time.Duration `mapstructure:"debounce"`
	Tools          []string      `mapstructure:"tools"`
	WatchPatterns  []string      `mapstructure:"watch_patterns"`
	IgnorePatterns []string      `mapstructure:"ignore_patterns"`
	Log            LogConfig     `mapstructure:"log"`

	// File is the config file that was read, empty if none.
	File string `mapstructure:"-"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

var defaults = map[string]any{
	"rules_dir":        ".agentsync/rules",
	"state_path":       ".agentsync/state.db",
	"tools_file":       ".agentsync/tools.toml",
	"auto_sync":        false,
	"debounce":         "1s",
	"tools":            []string{},
	"watch_patterns":   []string{},
	"ignore_patterns":  []string{},
	"log.level":        "info",
	"log.file":         "",
	"log.max_size_mb":  10,
	"log.max_backups":  3,
	"log.max_age_days": 28,
}

// FlagKeys maps command-line flag names to config keys. Only flags that are
// present in the FlagSet passed to Load and were explicitly set override the
// file and environment.
var FlagKeys = map[string]string{
	"rules-dir":  "rules_dir",
	"state-path": "state_path",
	"auto-sync":  "auto_sync",
	"debounce":   "debounce",
	"tool":       "tools",
	"log-level":  "log.level",
	"log-file":   "log.file",
}

// Load resolves the configuration for the project at root. flags may be nil.
func Load(root string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetConfigName("config")
	v.AddConfigPath(filepath.Join(root, ".agentsync"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if c.RulesDir == "" {
		return errors.New("rules_dir must not be empty")
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative (got %s)", c.Debounce)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error (got %q)", c.Log.Level)
	}
	return nil
}

// Path resolves a configured project-relative path against root.
func Path(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, filepath.FromSlash(p))
}
