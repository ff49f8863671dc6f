package registry

var allCaps = Capabilities{Rules: true, Commands: true, Memory: true, Context: true}

// builtins is the closed table of supported tools, in tie-break order.
var builtins = []ToolDescriptor{
	{
		ID:          ToolClaude,
		DisplayName: "Claude Code",
		Files:       []string{"CLAUDE.md", ".claude/settings.json"},
		Dirs:        []string{".claude"},
		Weight:      10,
		Artifacts: []ArtifactSpec{
			{Path: "CLAUDE.md", Format: FormatMarkdown, Required: true, Description: "project memory and instructions"},
		},
		Capabilities: Capabilities{Rules: true, Commands: true, Memory: true},
		Strategy:     StrategyMerge,
	},
	{
		ID:          ToolCursor,
		DisplayName: "Cursor",
		Files:       []string{".cursorrules"},
		Dirs:        []string{".cursor", ".cursor/rules"},
		Weight:      10,
		Artifacts: []ArtifactSpec{
			{Path: ".cursorrules", Format: FormatPlaintext, Required: true, Description: "legacy root rules file"},
			{Path: ".cursor/rules", Format: FormatMDCDir, Required: false, Description: "project rules, one .mdc per rule"},
		},
		Capabilities: allCaps,
		Strategy:     StrategyOverwrite,
	},
	{
		ID:          ToolCopilot,
		DisplayName: "GitHub Copilot",
		Files:       []string{".github/copilot-instructions.md"},
		Dirs:        []string{".github/instructions"},
		Weight:      8,
		Artifacts: []ArtifactSpec{
			{Path: ".github/copilot-instructions.md", Format: FormatMarkdown, Required: true, Description: "repository custom instructions"},
		},
		Capabilities: Capabilities{Rules: true},
		Strategy:     StrategyMerge,
	},
	{
		ID:          ToolWindsurf,
		DisplayName: "Windsurf",
		Files:       []string{".windsurfrules"},
		Dirs:        []string{".windsurf"},
		Weight:      7,
		Artifacts: []ArtifactSpec{
			{Path: ".windsurfrules", Format: FormatPlaintext, Required: true, Description: "workspace rules"},
		},
		Capabilities: Capabilities{Rules: true, Memory: true},
		Strategy:     StrategyOverwrite,
	},
	{
		ID:          ToolCline,
		DisplayName: "Cline",
		Files:       []string{".clinerules"},
		Weight:      6,
		Artifacts: []ArtifactSpec{
			{Path: ".clinerules", Format: FormatPlaintext, Required: true, Description: "project rules"},
		},
		Capabilities: Capabilities{Rules: true},
		Strategy:     StrategyOverwrite,
	},
	{
		ID:          ToolAider,
		DisplayName: "Aider",
		Files:       []string{".aider.conf.yml", "CONVENTIONS.md"},
		Weight:      6,
		Artifacts: []ArtifactSpec{
			{Path: "CONVENTIONS.md", Format: FormatMarkdown, Required: true, Description: "coding conventions"},
			{Path: ".aider.conf.yml", Format: FormatYAML, Required: true, Description: "loads CONVENTIONS.md as read-only context"},
		},
		Capabilities: Capabilities{Rules: true},
		Strategy:     StrategyMerge,
	},
	{
		ID:          ToolCodex,
		DisplayName: "OpenAI Codex",
		Files:       []string{"AGENTS.md"},
		Dirs:        []string{".codex"},
		Weight:      7,
		Artifacts: []ArtifactSpec{
			{Path: "AGENTS.md", Format: FormatMarkdown, Required: true, Description: "agent instructions"},
		},
		Capabilities: Capabilities{Rules: true, Memory: true},
		Strategy:     StrategyMerge,
	},
	{
		ID:          ToolGemini,
		DisplayName: "Gemini CLI",
		Files:       []string{"GEMINI.md"},
		Dirs:        []string{".gemini"},
		Weight:      7,
		Artifacts: []ArtifactSpec{
			{Path: "GEMINI.md", Format: FormatMarkdown, Required: true, Description: "context file"},
		},
		Capabilities: Capabilities{Rules: true, Commands: true, Memory: true},
		Strategy:     StrategyMerge,
	},
	{
		ID:          ToolContinue,
		DisplayName: "Continue",
		Dirs:        []string{".continue", ".continue/rules"},
		Weight:      5,
		Artifacts: []ArtifactSpec{
			{Path: ".continue/rules", Format: FormatMarkdownDir, Required: true, Description: "rule blocks, one per rule"},
		},
		Capabilities: Capabilities{Rules: true, Context: true},
		Strategy:     StrategyOverwrite,
	},
	{
		ID:          ToolAmazonQ,
		DisplayName: "Amazon Q Developer",
		Dirs:        []string{".amazonq", ".amazonq/rules"},
		Weight:      5,
		Artifacts: []ArtifactSpec{
			{Path: ".amazonq/rules", Format: FormatMarkdownDir, Required: true, Description: "project rules, one per rule"},
		},
		Capabilities: Capabilities{Rules: true},
		Strategy:     StrategyOverwrite,
	},
	{
		ID:          ToolRoo,
		DisplayName: "Roo Code",
		Files:       []string{".roomodes"},
		Dirs:        []string{".roo"},
		Weight:      5,
		Artifacts: []ArtifactSpec{
			{Path: ".roo/rules", Format: FormatMarkdownDir, Required: true, Description: "workspace rules, one per rule"},
		},
		Capabilities: Capabilities{Rules: true, Commands: true},
		Strategy:     StrategyOverwrite,
	},
	{
		ID:          ToolZed,
		DisplayName: "Zed",
		Files:       []string{".rules"},
		Weight:      4,
		Artifacts: []ArtifactSpec{
			{Path: ".rules", Format: FormatPlaintext, Required: true, Description: "agent rules"},
		},
		Capabilities: Capabilities{Rules: true},
		Strategy:     StrategyOverwrite,
	},
}
