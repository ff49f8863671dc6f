package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentsync/agentsync/internal/registry"
	"github.com/agentsync/agentsync/internal/ui"
)

var toolsCmd = &cobra.Command{
	Use:     "tools",
	GroupID: "manage",
	Short:   "List every tool agentsync knows about",
	Long: `List the tool registry: the built-in tools plus any declared in
.agentsync/tools.toml, with the artifacts agentsync writes for each.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		all := current.registry.All()
		if asJSON {
			return printJSON(all)
		}

		rows := make([][]string, 0, len(all))
		for _, d := range all {
			name := d.DisplayName
			if d.Custom {
				name += " " + ui.RenderMuted("(custom)")
			}
			rows = append(rows, []string{string(d.ID), name, string(d.Strategy), artifactList(d)})
		}
		fmt.Print(ui.Table([]string{"ID", "TOOL", "STRATEGY", "ARTIFACTS"}, rows))
		return nil
	},
}

func artifactList(d registry.ToolDescriptor) string {
	paths := make([]string, 0, len(d.Artifacts))
	for _, a := range d.Artifacts {
		p := a.Path
		if a.Format.IsDir() {
			p += "/*" + a.Format.FileExt()
		}
		if a.Required {
			p += "*"
		}
		paths = append(paths, p)
	}
	return strings.Join(paths, ", ")
}

func init() {
	toolsCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(toolsCmd)
}
