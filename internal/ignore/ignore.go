// Package ignore matches project-relative paths against gitignore-style
// patterns. The watcher uses it to skip build output and VCS metadata.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the optional per-project ignore file, read after the defaults.
const FileName = ".agentsyncignore"

// Defaults are always ignored.
var Defaults = []string{
	".git/",
	".jj/",
	".hg/",
	".svn/",
	"node_modules/",
	"dist/",
	"build/",
	"target/",
	"vendor/",
	".venv/",
	"__pycache__/",
	"*.tmp",
	"*.swp",
	"*~",
}

type pattern struct {
	glob     string
	negated  bool
	dirOnly  bool
	anchored bool
}

// Matcher holds compiled patterns. Later patterns win, so a negated pattern
// can re-include something an earlier one excluded.
type Matcher struct {
	patterns []pattern
}

// New returns a matcher over Defaults followed by extra.
func New(extra ...string) *Matcher {
	m := &Matcher{}
	m.AddPatterns(Defaults)
	m.AddPatterns(extra)
	return m
}

// Compile returns a matcher over exactly the given patterns.
func Compile(patterns []string) *Matcher {
	m := &Matcher{}
	m.AddPatterns(patterns)
	return m
}

// AddPattern adds one gitignore-style line. Blank lines and comments are
// ignored.
func (m *Matcher) AddPattern(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	var p pattern
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	}
	// Unanchored patterns without a slash match a basename at any depth.
	if !p.anchored && !strings.Contains(line, "/") {
		line = "**/" + line
	}
	if !doublestar.ValidatePattern(line) {
		return
	}
	p.glob = line
	m.patterns = append(m.patterns, p)
}

// AddPatterns adds every line in lines.
func (m *Matcher) AddPatterns(lines []string) {
	for _, l := range lines {
		m.AddPattern(l)
	}
}

// LoadFile adds the patterns in a gitignore-style file. A missing file is not
// an error.
func (m *Matcher) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.AddPattern(scanner.Text())
	}
	return scanner.Err()
}

// LoadFromDir returns a matcher over Defaults, extra and the project's
// FileName, in that order.
func LoadFromDir(root string, extra ...string) (*Matcher, error) {
	m := New(extra...)
	if err := m.LoadFile(filepath.Join(root, FileName)); err != nil {
		return nil, err
	}
	return m, nil
}

// Match reports whether rel, a slash- or OS-separated path relative to the
// project root, is ignored.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")
	if rel == "" || rel == "." {
		return false
	}

	ignored := false
	for _, p := range m.patterns {
		var hit bool
		if p.dirOnly && !isDir {
			hit = matchParent(p.glob, rel)
		} else {
			hit = matchGlob(p.glob, rel)
		}
		if hit {
			ignored = !p.negated
		}
	}
	return ignored
}

// matchParent reports whether some proper parent directory of rel matches.
func matchParent(glob, rel string) bool {
	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if matchGlob(glob, strings.Join(parts[:i], "/")) {
			return true
		}
	}
	return false
}

func matchGlob(glob, rel string) bool {
	if ok, _ := doublestar.Match(glob, rel); ok {
		return true
	}
	// "node_modules" also covers everything below it.
	if !strings.HasSuffix(glob, "/**") {
		ok, _ := doublestar.Match(glob+"/**", rel)
		return ok
	}
	return false
}
