package daemon

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/agentsync/agentsync/internal/ignore"
	"github.com/agentsync/agentsync/internal/registry"
)

// Class is the classification of a filesystem event.
type Class string

const (
	ClassArtifactChanged Class = "tool-artifact-changed"
	ClassArtifactAdded   Class = "tool-artifact-added"
	ClassArtifactRemoved Class = "tool-artifact-removed"
	ClassRuleChanged     Class = "canonical-rule-changed"
	ClassManifestChanged Class = "manifest-changed"
)

// TriggersPass reports whether events of this class start a pass when
// auto-sync is enabled.
func (c Class) TriggersPass() bool {
	switch c {
	case ClassArtifactChanged, ClassArtifactAdded, ClassRuleChanged:
		return true
	default:
		return false
	}
}

// Manifests are the dependency manifests whose changes are reported.
var Manifests = []string{
	"package.json",
	"go.mod",
	"Cargo.toml",
	"pyproject.toml",
	"requirements.txt",
	"Gemfile",
	"pom.xml",
	"build.gradle",
}

// Event is a classified filesystem event.
type Event struct {
	// Path is relative to the project root, slash-separated. Rule files
	// outside the root keep their absolute path.
	Path  string
	Class Class
	// Tool is the tool whose artifact or candidate path matched, if any.
	Tool registry.ToolID
	Op   fsnotify.Op
}

type toolPattern struct {
	glob string
	tool registry.ToolID
}

// Classifier maps paths to event classes.
type Classifier struct {
	root     string
	rulesAbs string
	rulesRel string // empty when the rules dir is outside root
	tools    []toolPattern
	extra    []string
	ignore   *ignore.Matcher
}

// NewClassifier builds a classifier for root. rulesDir is absolute or
// root-relative. extra are additional watch globs; ign may be nil.
func NewClassifier(root string, reg *registry.Registry, rulesDir string, extra []string, ign *ignore.Matcher) *Classifier {
	if ign == nil {
		ign = ignore.New()
	}
	c := &Classifier{root: root, ignore: ign}

	c.rulesAbs = rulesDir
	if !filepath.IsAbs(rulesDir) {
		c.rulesAbs = filepath.Join(root, filepath.FromSlash(rulesDir))
	}
	if rel, err := filepath.Rel(root, c.rulesAbs); err == nil && !strings.HasPrefix(rel, "..") {
		c.rulesRel = filepath.ToSlash(rel)
	}

	for _, desc := range reg.All() {
		add := func(p string, dir bool) {
			c.tools = append(c.tools, toolPattern{glob: p, tool: desc.ID})
			if dir {
				c.tools = append(c.tools, toolPattern{glob: p + "/**", tool: desc.ID})
			}
		}
		for _, a := range desc.Artifacts {
			add(a.Path, a.Format.IsDir())
		}
		for _, f := range desc.Files {
			add(f, false)
		}
		for _, d := range desc.Dirs {
			add(d, true)
		}
	}

	for _, p := range extra {
		if doublestar.ValidatePattern(p) {
			c.extra = append(c.extra, p)
		}
	}
	return c
}

// RulesDir returns the absolute rules directory.
func (c *Classifier) RulesDir() string {
	return c.rulesAbs
}

// rulesOutsideRoot reports whether the rules directory needs its own watch
// tree.
func (c *Classifier) rulesOutsideRoot() bool {
	return c.rulesRel == ""
}

// Ignored reports whether the absolute path is excluded from watching.
func (c *Classifier) Ignored(abs string, isDir bool) bool {
	rel, ok := c.rel(abs)
	if !ok {
		return false
	}
	return c.ignore.Match(rel, isDir)
}

// Classify maps an fsnotify event on an absolute path to a class. Chmod-only
// events, ignored paths and paths outside the watch set yield false.
func (c *Classifier) Classify(abs string, op fsnotify.Op) (Event, bool) {
	if op == fsnotify.Chmod || op == 0 {
		return Event{}, false
	}

	if c.isRuleFile(abs) {
		p, ok := c.rel(abs)
		if !ok {
			p = abs
		}
		return Event{Path: p, Class: ClassRuleChanged, Op: op}, true
	}

	rel, ok := c.rel(abs)
	if !ok || c.ignore.Match(rel, false) {
		return Event{}, false
	}

	for _, tp := range c.tools {
		if match(tp.glob, rel) {
			return Event{Path: rel, Class: artifactClass(op), Tool: tp.tool, Op: op}, true
		}
	}
	for _, g := range c.extra {
		if match(g, rel) {
			return Event{Path: rel, Class: artifactClass(op), Op: op}, true
		}
	}
	for _, m := range Manifests {
		if path.Base(rel) == m {
			return Event{Path: rel, Class: ClassManifestChanged, Op: op}, true
		}
	}
	return Event{}, false
}

func (c *Classifier) isRuleFile(abs string) bool {
	if filepath.Ext(abs) != ".json" {
		return false
	}
	rel, err := filepath.Rel(c.rulesAbs, abs)
	return err == nil && !strings.HasPrefix(rel, "..") && rel != "."
}

func (c *Classifier) rel(abs string) (string, bool) {
	rel, err := filepath.Rel(c.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func artifactClass(op fsnotify.Op) Class {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return ClassArtifactRemoved
	case op.Has(fsnotify.Create):
		return ClassArtifactAdded
	default:
		return ClassArtifactChanged
	}
}

func match(glob, rel string) bool {
	ok, _ := doublestar.Match(glob, rel)
	return ok
}
