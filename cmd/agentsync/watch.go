package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentsync/agentsync/internal/daemon"
	"github.com/agentsync/agentsync/internal/engine"
	"github.com/agentsync/agentsync/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Watch the project and re-sync on changes (foreground)",
	Long: `Watch the project root recursively for changes to tool artifacts and
canonical rules. Bursts of events are coalesced and at most one pass runs
at a time.

Without --auto-sync changes are only logged. With it, each settled burst
runs an incremental pass: edits made directly in tool files are folded back
into the canonical rules, then every existing artifact is regenerated.
Deleted artifacts are never recreated.

Changes to dependency manifests (package.json, go.mod, ...) are reported
but never trigger a pass.

Press Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := current.toolIDs(current.cfg.Tools)
		if err != nil {
			return err
		}

		h, err := daemon.StartWatching(daemon.Options{
			Root:           current.root.Path,
			RulesDir:       current.cfg.RulesDir,
			StatePath:      current.cfg.StatePath,
			AutoSync:       current.cfg.AutoSync,
			Debounce:       current.cfg.Debounce,
			WatchPatterns:  current.cfg.WatchPatterns,
			IgnorePatterns: current.cfg.IgnorePatterns,
			Tools:          ids,
			Registry:       current.registry,
			Logger:         current.logger,
			OnManifest: func(ev daemon.Event) {
				fmt.Printf("%s %s changed\n", ui.RenderMuted("·"), ev.Path)
			},
			OnPass: printPass,
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s Watching %s (debounce %s, auto-sync %t)\n",
			ui.RenderAccent("👀"), current.root.Path, current.cfg.Debounce, current.cfg.AutoSync)
		fmt.Printf("   Rules: %s\n", current.rulesDir())
		if !current.cfg.AutoSync {
			fmt.Printf("   %s auto-sync is off; changes will only be logged\n", ui.RenderWarn("⚠"))
		}
		fmt.Printf("   Press Ctrl+C to stop\n\n")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		fmt.Printf("\n%s Stopping watcher...\n", ui.RenderAccent("⏹"))
		stats := h.Watcher().Stats()
		if err := daemon.StopWatching(h); err != nil {
			return err
		}
		fmt.Printf("%s Stopped after %s and %s\n", ui.RenderPass("✓"),
			ui.Plural(stats.Events, "event"), ui.Plural(stats.Passes, "sync run"))
		return nil
	},
}

// printPass reports a watcher pass. Passes that changed nothing stay quiet.
func printPass(r *engine.SyncResult, err error) {
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "%s sync failed: %v\n", ui.RenderFail("✗"), err)
	case r.Changed() || r.Errors > 0 || len(r.Folded) > 0:
		fmt.Printf("%s %s\n", ui.RenderMuted(r.FinishedAt.Format("15:04:05")), ui.RenderBold("sync"))
		fmt.Print(formatResult(r))
	default:
		current.logger.Debug("watch pass made no changes", zap.Int("tools", len(r.Tools)))
	}
}

func init() {
	f := watchCmd.Flags()
	f.Bool("auto-sync", false, "Fold edits made in tool files back into the canonical rules")
	f.Duration("debounce", daemon.DefaultDebounce, "Quiet period before a pass runs")
	f.StringSlice("tool", nil, "Restrict passes to these tool ids (repeatable)")
	rootCmd.AddCommand(watchCmd)
}
