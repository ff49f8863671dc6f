package ignore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		isDir   bool
		want    bool
	}{
		{"*.log", "debug.log", false, true},
		{"*.log", "logs/debug.log", false, true},
		{"*.log", "debug.txt", false, false},

		{"node_modules/", "node_modules", true, true},
		{"node_modules/", "node_modules/left-pad/index.js", false, true},
		{"node_modules/", "web/node_modules", true, true},
		{"node_modules/", "node_modules", false, false},

		{"/build", "build", true, true},
		{"/build", "src/build", true, false},

		{"docs/**/*.md", "docs/a/b.md", false, true},
		{"docs/*.md", "docs/a/b.md", false, false},

		{"generated", "pkg/generated/x.go", false, true},
	}

	for _, tt := range tests {
		m := Compile([]string{tt.pattern})
		if got := m.Match(tt.path, tt.isDir); got != tt.want {
			t.Errorf("pattern %q, path %q (dir=%v) = %v, want %v", tt.pattern, tt.path, tt.isDir, got, tt.want)
		}
	}
}

func TestDefaults(t *testing.T) {
	m := New()
	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{".git", true, true},
		{".git/HEAD", false, true},
		{".jj/repo/store", true, true},
		{"web/node_modules/react/index.js", false, true},
		{"target", true, true},
		{".CLAUDE.md.123.tmp", false, true},
		{"notes.md~", false, true},
		{"CLAUDE.md", false, false},
		{".cursor/rules/security.mdc", false, false},
		{".agentsync/rules/a.json", false, false},
		{".", true, false},
	}
	for _, tt := range tests {
		if got := m.Match(tt.path, tt.isDir); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestNegation(t *testing.T) {
	m := New("!build/")
	if m.Match("build", true) {
		t.Error("negated default still ignored")
	}
	if !m.Match("dist", true) {
		t.Error("other defaults should still apply")
	}
}

func TestCommentsAndBlanks(t *testing.T) {
	m := Compile([]string{"# comment", "", "   ", "*.bak"})
	if len(m.patterns) != 1 {
		t.Fatalf("patterns = %d, want 1", len(m.patterns))
	}
	if !m.Match("x.bak", false) {
		t.Error("*.bak should match")
	}
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("# local\nscratch/\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadFromDir(dir, "*.gen.md")
	if err != nil {
		t.Fatalf("LoadFromDir() error = %v", err)
	}
	for _, p := range []string{"scratch/a.md", "docs/api.gen.md", ".git/config"} {
		if !m.Match(p, false) {
			t.Errorf("%s should be ignored", p)
		}
	}

	if _, err := LoadFromDir(t.TempDir()); err != nil {
		t.Errorf("missing ignore file: %v", err)
	}
}
