package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/agentsync/agentsync/internal/engine"
	"github.com/agentsync/agentsync/internal/ui"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatResult renders a pass summary for humans.
func formatResult(r *engine.SyncResult) string {
	var b strings.Builder
	if r.DryRun {
		fmt.Fprintf(&b, "%s dry run, nothing written\n", ui.RenderWarn("⚠"))
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "%s %s\n", ui.RenderFail("✗"), r.Error)
		return b.String()
	}
	if len(r.Tools) == 0 {
		fmt.Fprintf(&b, "%s no AI coding tools detected\n", ui.RenderMuted("·"))
	}

	rows := make([][]string, 0, len(r.Tools))
	for _, t := range r.Tools {
		detail := t.Detail
		if t.Error != "" {
			detail = t.Error
		}
		rows = append(rows, []string{ui.Action(string(t.Action)) + " " + t.Name, string(t.Action), detail})
	}
	if len(rows) > 0 {
		b.WriteString(ui.Table([]string{"TOOL", "ACTION", "DETAIL"}, rows))
	}

	for _, t := range r.Tools {
		for _, w := range t.Warnings {
			fmt.Fprintf(&b, "%s %s\n", ui.RenderWarn("⚠"), w.String())
		}
	}
	for _, f := range r.SkippedRuleFiles {
		fmt.Fprintf(&b, "%s skipped unreadable rule file %s\n", ui.RenderWarn("⚠"), f)
	}
	for _, f := range r.Folded {
		verb := "updated"
		if f.Created {
			verb = "imported"
		}
		fmt.Fprintf(&b, "%s %s rule %q from %s\n", ui.RenderAccent("↺"), verb, f.Name, f.Path)
	}

	fmt.Fprintf(&b, "%s, %d written, %d merged, %d skipped, %d failed (%s)\n",
		ui.Plural(r.Rules, "rule"), r.Written, r.Merged, r.Skipped, r.Errors,
		r.FinishedAt.Sub(r.StartedAt).Round(1e6))
	return b.String()
}
