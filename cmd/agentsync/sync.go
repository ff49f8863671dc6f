package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentsync/agentsync/internal/engine"
	"github.com/agentsync/agentsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Compile the canonical rules into every detected tool's files",
	Long: `Run one synchronization pass:
  1. Detect the tools configured in the project
  2. Load the canonical rules from .agentsync/rules
  3. Compile them into each tool's native format
  4. Write or merge each tool's artifacts, preserving user content

A full sync creates required artifacts that are missing. With --incremental
the pass behaves like a watcher pass and only updates existing files.

With --auto-sync, edits made directly in tool files are folded back into
the canonical rules first.

Exits non-zero only when the pass fails as a whole, for example when the
rules directory cannot be read. Per-tool failures are reported and the
remaining tools still sync.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		incremental, _ := cmd.Flags().GetBool("incremental")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		asJSON, _ := cmd.Flags().GetBool("json")

		ids, err := current.toolIDs(current.cfg.Tools)
		if err != nil {
			return err
		}

		opts := engine.FullSync()
		if incremental {
			opts = engine.Incremental(current.cfg.AutoSync)
			opts.Trigger = engine.TriggerManual
		}
		opts.AutoSync = current.cfg.AutoSync
		opts.DryRun = dryRun
		opts.Tools = ids

		e, closeState, err := current.openEngine()
		if err != nil {
			return err
		}
		defer closeState()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if !asJSON {
			fmt.Printf("%s Syncing rules from %s...\n", ui.RenderAccent("🔄"), current.rulesDir())
		}
		result, runErr := e.Run(ctx, current.root.Path, opts)
		if asJSON {
			if err := printJSON(result); err != nil {
				return err
			}
		} else {
			fmt.Print(formatResult(result))
		}

		if runErr != nil {
			current.logger.Debug("sync failed", zap.Error(runErr))
			return exitError{code: 1}
		}
		return nil
	},
}

func init() {
	f := syncCmd.Flags()
	f.Bool("incremental", false, "Only update artifacts that already exist")
	f.Bool("auto-sync", false, "Fold edits made in tool files back into the canonical rules")
	f.Bool("dry-run", false, "Report what would change without writing")
	f.StringSlice("tool", nil, "Restrict the pass to these tool ids (repeatable)")
	f.Bool("json", false, "Output the pass result as JSON")
	rootCmd.AddCommand(syncCmd)
}
