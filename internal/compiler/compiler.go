// Package compiler translates canonical rules into each tool's native
// artifacts and parses those artifacts back into rule fragments.
//
// Codecs are resolved once per tool from the closed table of artifact
// formats. Compilation is deterministic: the same rule set always produces
// byte-identical artifacts, whatever order the rules were loaded in.
package compiler

import (
	"fmt"
	"path"
	"strings"

	"github.com/agentsync/agentsync/internal/registry"
	"github.com/agentsync/agentsync/internal/rules"
)

// Artifact is one compiled output file.
type Artifact struct {
	// Path is project-relative and slash separated. For directory formats it
	// names one file inside the directory.
	Path    string
	Format  registry.Format
	Content []byte
	// Spec is the path of the ArtifactSpec this file belongs to.
	Spec string
	// RuleID is set for per-rule files of directory artifacts.
	RuleID string
}

// Warning records a rule feature a tool cannot express. Warnings never fail
// compilation.
type Warning struct {
	Tool     registry.ToolID `json:"tool"`
	RuleID   string          `json:"ruleId"`
	RuleName string          `json:"ruleName"`
	Message  string          `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: rule %q: %s", w.Tool, w.RuleName, w.Message)
}

// Output is the result of compiling a rule set for one tool.
type Output struct {
	Artifacts []Artifact
	Warnings  []Warning
}

// Section is one rule attributed inside a parsed artifact.
type Section struct {
	RuleID string
	Name   string
	Body   string
}

// RuleFragment is the rule content recovered from one artifact file.
type RuleFragment struct {
	Tool   registry.ToolID
	Path   string
	Format registry.Format
	// Content is the raw file text.
	Content string

	// HasRegion is true when a text artifact carries generated-region markers.
	HasRegion bool
	// Sections are the rule sections that carry a rule id marker.
	Sections []Section
	// Unattributed is rule-area text that belongs to no known section.
	Unattributed string
	// Outside is text of a text artifact outside the generated region. For
	// an artifact without markers it is the whole file.
	Outside string

	// Import is the text that should become a new canonical rule: the
	// unattributed text plus, for overwrite tools, the outside text (which the
	// next write would otherwise destroy).
	Import string
	// NeedsReview is set when Import is non-empty.
	NeedsReview bool

	// Metadata holds format-specific keys such as frontmatter fields.
	Metadata map[string]string
}

type codec interface {
	compile(tool registry.ToolDescriptor, spec registry.ArtifactSpec, rs []*rules.UniversalRule) []Artifact
	merge(existing, generated []byte) ([]byte, error)
	parse(data []byte) (*RuleFragment, error)
}

var codecs = map[registry.Format]codec{
	registry.FormatMarkdown:    textCodec{format: registry.FormatMarkdown},
	registry.FormatPlaintext:   textCodec{format: registry.FormatPlaintext},
	registry.FormatYAML:        yamlCodec{},
	registry.FormatMDCDir:      dirCodec{format: registry.FormatMDCDir},
	registry.FormatMarkdownDir: dirCodec{format: registry.FormatMarkdownDir},
}

type boundArtifact struct {
	spec  registry.ArtifactSpec
	codec codec
}

// Compiler is the bidirectional codec for one tool.
type Compiler struct {
	desc  registry.ToolDescriptor
	bound []boundArtifact
}

// New resolves the codecs for every artifact of desc.
func New(desc registry.ToolDescriptor) (*Compiler, error) {
	c := &Compiler{desc: desc}
	for _, spec := range desc.Artifacts {
		cd, ok := codecs[spec.Format]
		if !ok {
			return nil, fmt.Errorf("%w: %s (tool %s, artifact %s)", ErrUnsupportedFormat, spec.Format, desc.ID, spec.Path)
		}
		c.bound = append(c.bound, boundArtifact{spec: spec, codec: cd})
	}
	return c, nil
}

// ForRegistry builds a compiler for every tool in reg.
func ForRegistry(reg *registry.Registry) (map[registry.ToolID]*Compiler, error) {
	out := make(map[registry.ToolID]*Compiler, reg.Len())
	for _, desc := range reg.All() {
		c, err := New(desc)
		if err != nil {
			return nil, err
		}
		out[desc.ID] = c
	}
	return out, nil
}

// Tool returns the descriptor this compiler was built for.
func (c *Compiler) Tool() registry.ToolDescriptor {
	return c.desc
}

// Compile renders the rules that apply to this tool into its artifacts.
func (c *Compiler) Compile(all []*rules.UniversalRule) Output {
	selected := c.selectRules(all)
	out := Output{Warnings: c.warnings(selected)}
	for _, b := range c.bound {
		out.Artifacts = append(out.Artifacts, b.codec.compile(c.desc, b.spec, selected)...)
	}
	return out
}

// Merge combines a compiled artifact with the existing file content. Content
// outside the generated region is preserved byte for byte.
func (c *Compiler) Merge(a Artifact, existing []byte) ([]byte, error) {
	cd, ok := codecs[a.Format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, a.Format)
	}
	return cd.merge(existing, a.Content)
}

// Parse recovers rule content from the artifact file at rel (project
// relative, slash separated).
func (c *Compiler) Parse(rel string, data []byte) (*RuleFragment, error) {
	spec, ok := c.SpecFor(rel)
	if !ok {
		return nil, fmt.Errorf("%w: %s (tool %s)", ErrUnknownArtifact, rel, c.desc.ID)
	}
	f, err := codecs[spec.Format].parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", rel, err)
	}
	f.Tool = c.desc.ID
	f.Path = rel
	f.Format = spec.Format

	imported := []string{}
	if f.Unattributed != "" {
		imported = append(imported, f.Unattributed)
	}
	if c.desc.Strategy == registry.StrategyOverwrite && f.Outside != "" {
		imported = append(imported, f.Outside)
	}
	f.Import = strings.Join(imported, "\n\n")
	f.NeedsReview = f.Import != ""
	return f, nil
}

// SpecFor returns the artifact spec that owns rel: the spec itself for single
// files, the parent directory spec for per-rule files.
func (c *Compiler) SpecFor(rel string) (registry.ArtifactSpec, bool) {
	for _, b := range c.bound {
		if b.spec.Format.IsDir() {
			if path.Dir(rel) == b.spec.Path && path.Ext(rel) == b.spec.Format.FileExt() {
				return b.spec, true
			}
			continue
		}
		if rel == b.spec.Path {
			return b.spec, true
		}
	}
	return registry.ArtifactSpec{}, false
}

func (c *Compiler) selectRules(all []*rules.UniversalRule) []*rules.UniversalRule {
	var selected []*rules.UniversalRule
	for _, r := range all {
		if r.AppliesTo(string(c.desc.ID)) {
			selected = append(selected, r)
		}
	}
	rules.Sort(selected)
	return selected
}

func (c *Compiler) warnings(rs []*rules.UniversalRule) []Warning {
	var out []Warning
	add := func(r *rules.UniversalRule, msg string) {
		out = append(out, Warning{Tool: c.desc.ID, RuleID: r.ID, RuleName: r.Name, Message: msg})
	}
	for _, r := range rs {
		if r.Application.Mode == rules.ModeContext && !c.desc.Capabilities.Context {
			add(r, fmt.Sprintf("%s cannot scope rules to files; compiled as always-on", c.desc.DisplayName))
		}
		if len(r.Application.Exclude) > 0 && c.desc.Capabilities.Context {
			add(r, "exclude globs are not supported; dropped")
		}
		if len(r.Application.Conditions) > 0 {
			add(r, "activation conditions are not supported; dropped")
		}
		if ruleHasMarkerLines(r, string(c.desc.ID)) {
			add(r, "lines that look like agentsync markers are escaped with a backslash")
		}
	}
	return out
}

func ruleHasMarkerLines(r *rules.UniversalRule, tool string) bool {
	if hasMarkerLines(normalizeNewlines(r.MarkdownFor(tool))) {
		return true
	}
	for _, ex := range r.Content.Examples {
		if hasMarkerLines(normalizeNewlines(ex.Description)) || hasMarkerLines(normalizeNewlines(ex.Code)) {
			return true
		}
	}
	return false
}
