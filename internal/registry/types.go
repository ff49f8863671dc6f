// Package registry is the static catalog of AI coding tools that agentsync
// knows how to detect and synchronize.
package registry

// ToolID identifies a supported AI tool.
type ToolID string

// Built-in tool identifiers. Declaration order in builtins is the detection
// tie-break order.
const (
	ToolClaude   ToolID = "claude"
	ToolCursor   ToolID = "cursor"
	ToolCopilot  ToolID = "copilot"
	ToolWindsurf ToolID = "windsurf"
	ToolCline    ToolID = "cline"
	ToolAider    ToolID = "aider"
	ToolCodex    ToolID = "codex"
	ToolGemini   ToolID = "gemini"
	ToolContinue ToolID = "continue"
	ToolAmazonQ  ToolID = "amazonq"
	ToolRoo      ToolID = "roo"
	ToolZed      ToolID = "zed"
)

// Format is the native file format of a tool artifact.
type Format string

const (
	// FormatMarkdown is a single markdown file.
	FormatMarkdown Format = "markdown"
	// FormatPlaintext is a single free-text rules file (.cursorrules, .rules).
	FormatPlaintext Format = "plaintext"
	// FormatYAML is a single YAML configuration file.
	FormatYAML Format = "yaml"
	// FormatMDCDir is a directory of Cursor .mdc files, one per rule.
	FormatMDCDir Format = "mdc-dir"
	// FormatMarkdownDir is a directory of markdown files, one per rule.
	FormatMarkdownDir Format = "markdown-dir"
)

// IsDir reports whether artifacts of this format are directories holding one
// file per rule.
func (f Format) IsDir() bool {
	return f == FormatMDCDir || f == FormatMarkdownDir
}

// FileExt returns the extension used for per-rule files of a directory format.
func (f Format) FileExt() string {
	switch f {
	case FormatMDCDir:
		return ".mdc"
	case FormatMarkdownDir:
		return ".md"
	default:
		return ""
	}
}

// Strategy governs how canonical rules are reconciled with an existing artifact.
type Strategy string

const (
	// StrategyOverwrite fully regenerates the artifact from canonical rules.
	StrategyOverwrite Strategy = "overwrite"
	// StrategyMerge replaces only the generated region and keeps tool-authored content.
	StrategyMerge Strategy = "merge"
)

// ArtifactSpec declares one native artifact of a tool.
type ArtifactSpec struct {
	// Path is relative to the project root, slash separated.
	Path        string `toml:"path" json:"path"`
	Format      Format `toml:"format" json:"format"`
	Required    bool   `toml:"required" json:"required"`
	Description string `toml:"description" json:"description,omitempty"`
}

// Capabilities describes what a tool's native configuration can express.
type Capabilities struct {
	Rules    bool `toml:"rules" json:"rules"`
	Commands bool `toml:"commands" json:"commands"`
	Memory   bool `toml:"memory" json:"memory"`
	// Context is true when the tool can scope a rule to file globs.
	Context bool `toml:"context" json:"context"`
}

// ToolDescriptor is the registry entry for one tool. Descriptors are
// configuration and are never mutated at runtime.
type ToolDescriptor struct {
	ID          ToolID `toml:"id" json:"id"`
	DisplayName string `toml:"name" json:"name"`

	// Detection evidence, relative to the project root.
	Files  []string `toml:"files" json:"files,omitempty"`
	Dirs   []string `toml:"dirs" json:"dirs,omitempty"`
	Weight int      `toml:"weight" json:"weight"`

	Artifacts    []ArtifactSpec `toml:"artifacts" json:"artifacts"`
	Capabilities Capabilities   `toml:"capabilities" json:"capabilities"`
	Strategy     Strategy       `toml:"strategy" json:"strategy"`

	// Custom is set for descriptors declared in tools.toml.
	Custom bool `toml:"-" json:"custom,omitempty"`
}

// CandidateCount is the number of detection candidates declared.
func (d ToolDescriptor) CandidateCount() int {
	return len(d.Files) + len(d.Dirs)
}

// Artifact returns the artifact spec at path.
func (d ToolDescriptor) Artifact(path string) (ArtifactSpec, bool) {
	for _, a := range d.Artifacts {
		if a.Path == path {
			return a, true
		}
	}
	return ArtifactSpec{}, false
}
