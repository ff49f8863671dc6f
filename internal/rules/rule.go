// Package rules defines the canonical, tool-agnostic rule model and its
// file-per-rule JSON store.
package rules

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"golang.org/x/mod/semver"
)

// Priority orders rules inside generated artifacts.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank returns a sort key where higher priorities rank first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// ActivationMode controls when a tool should apply a rule.
type ActivationMode string

const (
	// ModeAlways applies the rule to every request.
	ModeAlways ActivationMode = "always"
	// ModeContext applies the rule only when its file globs match.
	ModeContext ActivationMode = "context"
)

// Source records how a rule came into existence.
type Source string

const (
	SourceAutoGenerated Source = "auto-generated"
	SourceManual        Source = "manual"
)

// Example is a code snippet illustrating a rule.
type Example struct {
	Code        string `json:"code"`
	Language    string `json:"language,omitempty"`
	Description string `json:"description,omitempty"`
}

// Targeting narrows where a rule is relevant.
type Targeting struct {
	Languages  []string `json:"languages,omitempty"`
	Frameworks []string `json:"frameworks,omitempty"`
	Files      []string `json:"files,omitempty"`
	Contexts   []string `json:"contexts,omitempty"`
}

// Content is the body of a rule.
type Content struct {
	Markdown string    `json:"markdown"`
	Examples []Example `json:"examples,omitempty"`
	Tags     []string  `json:"tags,omitempty"`
	Priority Priority  `json:"priority"`
}

// ToolOverride replaces parts of a rule for one tool.
type ToolOverride struct {
	Disabled bool     `json:"disabled,omitempty"`
	Markdown string   `json:"markdown,omitempty"`
	Globs    []string `json:"globs,omitempty"`
}

// Compatibility lists the tools a rule is compiled for.
// An empty Tools list means every tool.
type Compatibility struct {
	Tools     []string                `json:"tools,omitempty"`
	Overrides map[string]ToolOverride `json:"overrides,omitempty"`
}

// Application controls activation of a rule.
type Application struct {
	Mode       ActivationMode `json:"mode"`
	Include    []string       `json:"include,omitempty"`
	Exclude    []string       `json:"exclude,omitempty"`
	Conditions []string       `json:"conditions,omitempty"`
}

// Metadata carries provenance and timestamps.
type Metadata struct {
	Created        time.Time `json:"created"`
	Updated        time.Time `json:"updated"`
	Source         Source    `json:"source"`
	Confidence     float64   `json:"confidence"`
	ReviewRequired bool      `json:"reviewRequired"`
}

// UniversalRule is the canonical representation of one coding guideline.
// ID is immutable once created; everything else changes through Store.Save.
type UniversalRule struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Version       string        `json:"version"`
	Description   string        `json:"description,omitempty"`
	Targeting     Targeting     `json:"targeting"`
	Content       Content       `json:"content"`
	Compatibility Compatibility `json:"compatibility"`
	Application   Application   `json:"application"`
	Metadata      Metadata      `json:"metadata"`
}

// NewRule creates a manual, always-on rule with a fresh id.
func NewRule(name, markdown string) *UniversalRule {
	now := time.Now().UTC()
	return &UniversalRule{
		ID:      uuid.NewString(),
		Name:    name,
		Version: "1.0.0",
		Content: Content{
			Markdown: markdown,
			Priority: PriorityMedium,
		},
		Application: Application{Mode: ModeAlways},
		Metadata: Metadata{
			Created:    now,
			Updated:    now,
			Source:     SourceManual,
			Confidence: 1,
		},
	}
}

// Validate checks the rule invariants.
func (r *UniversalRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("id must be a UUID (got %q)", r.ID)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(r.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(r.Name))
	}
	if !semver.IsValid("v" + r.Version) {
		return fmt.Errorf("version must be a semantic version (got %q)", r.Version)
	}
	switch r.Content.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return fmt.Errorf("priority must be low, medium or high (got %q)", r.Content.Priority)
	}
	switch r.Application.Mode {
	case ModeAlways, ModeContext:
	default:
		return fmt.Errorf("activation mode must be always or context (got %q)", r.Application.Mode)
	}
	switch r.Metadata.Source {
	case SourceAutoGenerated, SourceManual:
	default:
		return fmt.Errorf("source must be auto-generated or manual (got %q)", r.Metadata.Source)
	}
	if r.Metadata.Confidence < 0 || r.Metadata.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1 (got %v)", r.Metadata.Confidence)
	}
	if r.Metadata.Created.IsZero() {
		return fmt.Errorf("created is required")
	}
	if r.Metadata.Updated.Before(r.Metadata.Created) {
		return fmt.Errorf("updated (%s) must not be before created (%s)",
			r.Metadata.Updated.Format(time.RFC3339), r.Metadata.Created.Format(time.RFC3339))
	}
	for _, g := range r.allGlobs() {
		if !doublestar.ValidatePattern(g) {
			return fmt.Errorf("invalid glob pattern %q", g)
		}
	}
	if r.Slug() == "" {
		return fmt.Errorf("name %q does not produce a usable filename", r.Name)
	}
	return nil
}

func (r *UniversalRule) allGlobs() []string {
	globs := append([]string(nil), r.Targeting.Files...)
	globs = append(globs, r.Application.Include...)
	globs = append(globs, r.Application.Exclude...)
	for _, o := range r.Compatibility.Overrides {
		globs = append(globs, o.Globs...)
	}
	return globs
}

// Slug is the filename stem derived from the rule name.
func (r *UniversalRule) Slug() string {
	return Slugify(r.Name)
}

// Filename returns the canonical filename for this rule: {slug}.json
func (r *UniversalRule) Filename() string {
	return r.Slug() + FileExt
}

// Slugify lowercases name and turns whitespace runs and path separators into
// single hyphens.
func Slugify(name string) string {
	lower := strings.ToLower(name)
	lower = strings.NewReplacer("/", " ", `\`, " ").Replace(lower)
	return strings.Join(strings.Fields(lower), "-")
}

// AppliesTo reports whether the rule should be compiled for tool.
func (r *UniversalRule) AppliesTo(tool string) bool {
	if o, ok := r.Compatibility.Overrides[tool]; ok && o.Disabled {
		return false
	}
	return len(r.Compatibility.Tools) == 0 || slices.Contains(r.Compatibility.Tools, tool)
}

// MarkdownFor returns the body to emit for tool, honoring overrides.
func (r *UniversalRule) MarkdownFor(tool string) string {
	if o, ok := r.Compatibility.Overrides[tool]; ok && o.Markdown != "" {
		return o.Markdown
	}
	return r.Content.Markdown
}

// GlobsFor returns the file globs scoping the rule for tool: the tool
// override, then Application.Include, then Targeting.Files.
func (r *UniversalRule) GlobsFor(tool string) []string {
	if o, ok := r.Compatibility.Overrides[tool]; ok && len(o.Globs) > 0 {
		return o.Globs
	}
	if len(r.Application.Include) > 0 {
		return r.Application.Include
	}
	return r.Targeting.Files
}

// HasTag reports whether the rule carries tag.
func (r *UniversalRule) HasTag(tag string) bool {
	return slices.Contains(r.Content.Tags, tag)
}

// Clone returns a deep copy.
func (r *UniversalRule) Clone() *UniversalRule {
	c := *r
	c.Targeting.Languages = slices.Clone(r.Targeting.Languages)
	c.Targeting.Frameworks = slices.Clone(r.Targeting.Frameworks)
	c.Targeting.Files = slices.Clone(r.Targeting.Files)
	c.Targeting.Contexts = slices.Clone(r.Targeting.Contexts)
	c.Content.Examples = slices.Clone(r.Content.Examples)
	c.Content.Tags = slices.Clone(r.Content.Tags)
	c.Compatibility.Tools = slices.Clone(r.Compatibility.Tools)
	if r.Compatibility.Overrides != nil {
		c.Compatibility.Overrides = make(map[string]ToolOverride, len(r.Compatibility.Overrides))
		for k, v := range r.Compatibility.Overrides {
			v.Globs = slices.Clone(v.Globs)
			c.Compatibility.Overrides[k] = v
		}
	}
	c.Application.Include = slices.Clone(r.Application.Include)
	c.Application.Exclude = slices.Clone(r.Application.Exclude)
	c.Application.Conditions = slices.Clone(r.Application.Conditions)
	return &c
}

// BumpPatch increments the patch component of a semantic version.
// Pre-release and build suffixes are dropped.
func BumpPatch(version string) string {
	if !semver.IsValid("v" + version) {
		return "1.0.0"
	}
	core := strings.TrimPrefix(semver.Canonical("v"+version), "v")
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	parts := strings.Split(core, ".")
	patch, _ := strconv.Atoi(parts[2])
	return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1)
}
