package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/agentsync/agentsync/internal/rules"
	"github.com/agentsync/agentsync/internal/ui"
)

var rulesCmd = &cobra.Command{
	Use:     "rules",
	GroupID: "manage",
	Short:   "Manage the canonical rules",
	Long: `List, inspect, add and remove the canonical rules stored as one JSON file
per rule under .agentsync/rules.

Run 'agentsync sync' afterwards to propagate changes to every tool.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List canonical rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		tag, _ := cmd.Flags().GetString("tag")

		report, err := rules.NewStore(current.logger).Load(current.rulesDir())
		if err != nil {
			return err
		}
		list := report.Rules
		if tag != "" {
			list = filterByTag(list, tag)
		}
		rules.Sort(list)

		if asJSON {
			if list == nil {
				list = []*rules.UniversalRule{}
			}
			return printJSON(list)
		}

		for _, s := range report.Skipped {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderWarn("⚠"), s)
		}
		if len(list) == 0 {
			fmt.Printf("%s No rules in %s\n", ui.RenderMuted("·"), current.rulesDir())
			fmt.Printf("   Run 'agentsync rules add' to create one\n")
			return nil
		}
		rows := make([][]string, 0, len(list))
		for _, r := range list {
			name := r.Name
			if r.Metadata.ReviewRequired {
				name += " " + ui.RenderWarn("(review)")
			}
			rows = append(rows, []string{
				shortID(r.ID),
				name,
				string(r.Content.Priority),
				string(r.Application.Mode),
				toolsLabel(r),
				r.Version,
			})
		}
		fmt.Print(ui.Table([]string{"ID", "NAME", "PRIORITY", "MODE", "TOOLS", "VERSION"}, rows))
		return nil
	},
}

var rulesShowCmd = &cobra.Command{
	Use:   "show <id|name>",
	Short: "Show one rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		r, err := findRule(rules.NewStore(current.logger), current.rulesDir(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(r)
		}

		fmt.Printf("\n%s %s\n\n", ui.RenderAccent("📄"), ui.RenderBold(r.Name))
		fmt.Printf("ID:         %s\n", r.ID)
		fmt.Printf("Version:    %s\n", r.Version)
		fmt.Printf("Priority:   %s\n", r.Content.Priority)
		fmt.Printf("Mode:       %s\n", r.Application.Mode)
		if len(r.Application.Include) > 0 {
			fmt.Printf("Globs:      %s\n", strings.Join(r.Application.Include, ", "))
		}
		fmt.Printf("Tools:      %s\n", toolsLabel(r))
		if len(r.Content.Tags) > 0 {
			fmt.Printf("Tags:       %s\n", strings.Join(r.Content.Tags, ", "))
		}
		fmt.Printf("Source:     %s (confidence %s)\n", r.Metadata.Source, ui.Confidence(r.Metadata.Confidence))
		fmt.Printf("Updated:    %s\n", r.Metadata.Updated.Local().Format("2006-01-02 15:04:05"))
		if r.Metadata.ReviewRequired {
			fmt.Printf("%s Imported or changed from a tool file; review recommended\n", ui.RenderWarn("⚠"))
		}
		fmt.Printf("\n%s\n", strings.TrimRight(r.Content.Markdown, "\n"))
		return nil
	},
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a canonical rule",
	Long: `Create a canonical rule. Missing fields are prompted for when running in
a terminal.

Examples:
  agentsync rules add --name "Go style" --markdown "Run gofmt before committing."
  agentsync rules add --name "API handlers" --file docs/handlers.md --glob "api/**/*.go" --priority high`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := ruleInputFromFlags(cmd)
		if err != nil {
			return err
		}
		if in.incomplete() {
			if !ui.IsTerminal(os.Stdin) {
				return errors.New("--name and --markdown (or --file) are required when not running in a terminal")
			}
			if err := promptRule(&in); err != nil {
				return err
			}
		}

		r, err := in.rule()
		if err != nil {
			return err
		}
		if err := rules.NewStore(current.logger).Save(current.rulesDir(), r); err != nil {
			return err
		}
		fmt.Printf("%s Added rule %q (%s)\n", ui.RenderPass("✓"), r.Name, shortID(r.ID))
		fmt.Printf("   Run 'agentsync sync' to update your tools\n")
		return nil
	},
}

var rulesRmCmd = &cobra.Command{
	Use:     "rm <id|name>",
	Aliases: []string{"remove", "delete"},
	Short:   "Remove a canonical rule",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := rules.NewStore(current.logger)
		r, err := findRule(store, current.rulesDir(), args[0])
		if err != nil {
			return err
		}
		removed, err := store.Delete(current.rulesDir(), r.ID)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%w: %s", rules.ErrRuleNotFound, args[0])
		}
		fmt.Printf("%s Removed rule %q\n", ui.RenderPass("✓"), r.Name)
		return nil
	},
}

func init() {
	rulesListCmd.Flags().Bool("json", false, "Output as JSON")
	rulesListCmd.Flags().String("tag", "", "Only list rules with this tag")
	rulesShowCmd.Flags().Bool("json", false, "Output as JSON")

	f := rulesAddCmd.Flags()
	f.StringP("name", "n", "", "Rule name")
	f.StringP("markdown", "m", "", "Rule body (markdown)")
	f.String("file", "", "Read the rule body from a markdown file")
	f.StringP("priority", "p", string(rules.PriorityMedium), "Priority: high, medium or low")
	f.StringSlice("tag", nil, "Tag (repeatable)")
	f.StringSlice("for", nil, "Only compile for this tool id (repeatable)")
	f.StringSlice("glob", nil, "Only apply to files matching this glob (repeatable); sets context mode")
	f.String("description", "", "One-line description")

	rulesCmd.AddCommand(rulesListCmd, rulesShowCmd, rulesAddCmd, rulesRmCmd)
	rootCmd.AddCommand(rulesCmd)
}

// ruleInput collects the fields of a new rule from flags and prompts.
type ruleInput struct {
	name        string
	markdown    string
	description string
	priority    string
	tags        []string
	tools       []string
	globs       []string
}

func ruleInputFromFlags(cmd *cobra.Command) (ruleInput, error) {
	var in ruleInput
	in.name, _ = cmd.Flags().GetString("name")
	in.markdown, _ = cmd.Flags().GetString("markdown")
	in.description, _ = cmd.Flags().GetString("description")
	in.priority, _ = cmd.Flags().GetString("priority")
	in.tags, _ = cmd.Flags().GetStringSlice("tag")
	in.tools, _ = cmd.Flags().GetStringSlice("for")
	in.globs, _ = cmd.Flags().GetStringSlice("glob")

	file, _ := cmd.Flags().GetString("file")
	if file != "" {
		if in.markdown != "" {
			return in, errors.New("--markdown and --file are mutually exclusive")
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return in, fmt.Errorf("failed to read rule body: %w", err)
		}
		in.markdown = string(data)
	}
	for _, t := range in.tools {
		if _, err := current.toolIDs([]string{t}); err != nil {
			return in, err
		}
	}
	return in, nil
}

func (in ruleInput) incomplete() bool {
	return strings.TrimSpace(in.name) == "" || strings.TrimSpace(in.markdown) == ""
}

// rule builds a validated rule from the input.
func (in ruleInput) rule() (*rules.UniversalRule, error) {
	r := rules.NewRule(strings.TrimSpace(in.name), strings.TrimSpace(in.markdown)+"\n")
	r.Description = in.description
	r.Content.Tags = in.tags
	r.Compatibility.Tools = in.tools

	p := rules.Priority(strings.ToLower(in.priority))
	switch p {
	case rules.PriorityHigh, rules.PriorityMedium, rules.PriorityLow:
		r.Content.Priority = p
	default:
		return nil, fmt.Errorf("invalid priority %q (want high, medium or low)", in.priority)
	}

	if len(in.globs) > 0 {
		r.Application.Mode = rules.ModeContext
		r.Application.Include = in.globs
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func promptRule(in *ruleInput) error {
	required := func(field string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", field)
			}
			return nil
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Rule name").
				Placeholder("Go error handling").
				Value(&in.name).
				Validate(required("name")),
			huh.NewInput().
				Title("Description").
				Description("Optional one-line summary").
				Value(&in.description),
			huh.NewSelect[string]().
				Title("Priority").
				Options(huh.NewOptions(
					string(rules.PriorityHigh),
					string(rules.PriorityMedium),
					string(rules.PriorityLow),
				)...).
				Value(&in.priority),
		),
		huh.NewGroup(
			huh.NewText().
				Title("Rule body").
				Description("Markdown, written the way you would tell a teammate").
				Value(&in.markdown).
				Validate(required("rule body")),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errors.New("cancelled")
		}
		return err
	}
	return nil
}

// findRule resolves ref as a full id, a unique id prefix or a rule name.
func findRule(store *rules.Store, dir, ref string) (*rules.UniversalRule, error) {
	all, err := store.LoadAll(dir)
	if err != nil {
		return nil, err
	}

	slug := rules.Slugify(ref)
	var byPrefix []*rules.UniversalRule
	for _, r := range all {
		if r.ID == ref {
			return r, nil
		}
		if len(ref) >= 4 && strings.HasPrefix(r.ID, ref) {
			byPrefix = append(byPrefix, r)
		}
	}
	for _, r := range all {
		if r.Slug() == slug || strings.EqualFold(r.Name, ref) {
			return r, nil
		}
	}
	switch len(byPrefix) {
	case 1:
		return byPrefix[0], nil
	case 0:
		return nil, fmt.Errorf("%w: %s", rules.ErrRuleNotFound, ref)
	default:
		return nil, fmt.Errorf("ambiguous rule id prefix %q matches %d rules", ref, len(byPrefix))
	}
}

func filterByTag(list []*rules.UniversalRule, tag string) []*rules.UniversalRule {
	var out []*rules.UniversalRule
	for _, r := range list {
		if r.HasTag(tag) {
			out = append(out, r)
		}
	}
	return out
}

func toolsLabel(r *rules.UniversalRule) string {
	if len(r.Compatibility.Tools) == 0 {
		return "all"
	}
	return strings.Join(r.Compatibility.Tools, ",")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
