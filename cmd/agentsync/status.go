package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentsync/agentsync/internal/config"
	"github.com/agentsync/agentsync/internal/state"
	"github.com/agentsync/agentsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "manage",
	Short:   "Show recent sync passes and tracked artifacts",
	Long: `Show the sync history recorded in .agentsync/state.db: the most recent
passes and the artifacts agentsync last wrote or observed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		statePath := config.Path(current.root.Path, current.cfg.StatePath)
		if _, err := os.Stat(statePath); errors.Is(err, fs.ErrNotExist) {
			if asJSON {
				return printJSON(statusReport{Passes: []state.PassRecord{}, Artifacts: []artifactStatus{}})
			}
			fmt.Printf("\n%s No sync history yet\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'agentsync sync' to create it\n\n")
			return nil
		}

		st, err := state.OpenSQLite(statePath)
		if err != nil {
			return err
		}
		defer st.Close()

		report, err := loadStatus(cmd.Context(), st, current.root.Path, limit)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(report)
		}

		fmt.Printf("\n%s Sync Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Project: %s\n", current.root.Path)
		fmt.Printf("Rules:   %s\n", current.rulesDir())
		fmt.Printf("State:   %s\n\n", statePath)

		if len(report.Passes) == 0 {
			fmt.Printf("%s No passes recorded\n", ui.RenderMuted("·"))
		} else {
			rows := make([][]string, 0, len(report.Passes))
			for _, p := range report.Passes {
				outcome := fmt.Sprintf("%d written, %d merged, %d skipped, %d failed", p.Written, p.Merged, p.Skipped, p.Errors)
				if p.Error != "" {
					outcome = ui.RenderFail(p.Error)
				}
				trigger := p.Trigger
				if p.DryRun {
					trigger += " (dry run)"
				}
				rows = append(rows, []string{
					p.StartedAt.Local().Format("2006-01-02 15:04:05"),
					trigger,
					outcome,
					p.Duration().Round(1e6).String(),
				})
			}
			fmt.Print(ui.Table([]string{"STARTED", "TRIGGER", "OUTCOME", "TOOK"}, rows))
		}

		if len(report.Artifacts) > 0 {
			fmt.Println()
			rows := make([][]string, 0, len(report.Artifacts))
			for _, a := range report.Artifacts {
				rows = append(rows, []string{a.Path, a.Tool, a.Origin, a.UpdatedAt})
			}
			fmt.Print(ui.Table([]string{"ARTIFACT", "TOOL", "ORIGIN", "UPDATED"}, rows))
		}
		fmt.Println()
		return nil
	},
}

type artifactStatus struct {
	Path      string `json:"path"`
	Tool      string `json:"tool"`
	Origin    string `json:"origin"`
	UpdatedAt string `json:"updatedAt"`
}

type statusReport struct {
	Passes    []state.PassRecord `json:"passes"`
	Artifacts []artifactStatus   `json:"artifacts"`
}

func loadStatus(ctx context.Context, st state.Store, root string, limit int) (statusReport, error) {
	report := statusReport{Passes: []state.PassRecord{}, Artifacts: []artifactStatus{}}

	passes, err := st.RecentPasses(ctx, root, limit)
	if err != nil {
		return report, fmt.Errorf("failed to read sync history: %w", err)
	}
	report.Passes = append(report.Passes, passes...)

	arts, err := st.Artifacts(ctx, root)
	if err != nil {
		return report, fmt.Errorf("failed to read artifact state: %w", err)
	}
	for _, a := range arts {
		origin := "observed"
		if a.Generated {
			origin = "generated"
		}
		report.Artifacts = append(report.Artifacts, artifactStatus{
			Path:      a.Path,
			Tool:      a.Tool,
			Origin:    origin,
			UpdatedAt: a.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return report, nil
}

func init() {
	statusCmd.Flags().Int("limit", 10, "Number of passes to show")
	statusCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(statusCmd)
}
