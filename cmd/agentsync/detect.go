package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentsync/agentsync/internal/detect"
	"github.com/agentsync/agentsync/internal/ui"
)

var detectCmd = &cobra.Command{
	Use:     "detect",
	GroupID: "sync",
	Short:   "List the AI coding tools configured in this project",
	Long: `Scan the project root for the configuration files and directories of every
known tool and report each detected tool with a confidence score.

Confidence is the share of a tool's known paths that exist. Nothing is
written.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		tools := detect.New(current.registry, current.logger).Detect(current.root.Path)
		if asJSON {
			if tools == nil {
				tools = []detect.DetectedTool{}
			}
			return printJSON(tools)
		}

		if len(tools) == 0 {
			fmt.Printf("%s No AI coding tools detected in %s\n", ui.RenderMuted("·"), current.root.Path)
			return nil
		}
		rows := make([][]string, 0, len(tools))
		for _, t := range tools {
			rows = append(rows, []string{
				string(t.Tool),
				t.Name,
				ui.Confidence(t.Confidence),
				strings.Join(t.Evidence, ", "),
			})
		}
		fmt.Printf("%s Detected %s in %s\n\n", ui.RenderAccent("🔍"), ui.Plural(len(tools), "tool"), current.root.Path)
		fmt.Print(ui.Table([]string{"ID", "TOOL", "CONFIDENCE", "EVIDENCE"}, rows))
		return nil
	},
}

func init() {
	detectCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(detectCmd)
}
