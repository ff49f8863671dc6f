// Command agentsync keeps AI coding tool instruction files in sync with a
// canonical set of rules.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentsync/agentsync/internal/config"
	"github.com/agentsync/agentsync/internal/engine"
	"github.com/agentsync/agentsync/internal/logging"
	"github.com/agentsync/agentsync/internal/project"
	"github.com/agentsync/agentsync/internal/registry"
	"github.com/agentsync/agentsync/internal/state"
	"github.com/agentsync/agentsync/internal/ui"
)

// Version is set at build time.
var Version = "dev"

// app is the per-invocation environment built by the root command.
type app struct {
	root     *project.Root
	cfg      *config.Config
	logger   *zap.Logger
	closeLog func() error
	registry *registry.Registry
}

var current app

// exitError carries a non-zero exit status without printing anything more.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

var rootCmd = &cobra.Command{
	Use:   "agentsync",
	Short: "Synchronize coding rules across AI coding tools",
	Long: `agentsync detects the AI coding tools configured in a project (Claude Code,
Cursor, Copilot, Windsurf, Cline, Aider and others) and keeps their
instruction files in sync with one canonical set of rules stored in
.agentsync/rules.

Generated content lives between marker lines; everything you write outside
them is preserved.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "manage", Title: "Management Commands:"},
	)
	pf := rootCmd.PersistentFlags()
	pf.StringP("root", "C", "", "Project directory (default: nearest parent with .agentsync, .jj or .git)")
	pf.String("rules-dir", "", "Canonical rules directory, relative to the project root")
	pf.String("state-path", "", "State database path, relative to the project root")
	pf.String("log-level", "", "Log level: debug, info, warn or error")
	pf.String("log-file", "", "Also write JSON logs to this file (rotated)")
	pf.Bool("no-color", false, "Disable coloured output")
}

func setup(cmd *cobra.Command) error {
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		ui.DisableColor()
	}

	start, _ := cmd.Flags().GetString("root")
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		start = wd
	}
	root, err := project.Resolve(start)
	if err != nil {
		return fmt.Errorf("failed to resolve project root: %w", err)
	}

	cfg, err := config.Load(root.Path, cmd.Flags())
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       config.Path(root.Path, cfg.Log.File),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return err
	}

	reg, err := registry.WithOverrides(config.Path(root.Path, cfg.ToolsFile))
	if err != nil {
		_ = closeLog()
		return err
	}

	current = app{root: root, cfg: cfg, logger: logger, closeLog: closeLog, registry: reg}
	logger.Debug("project resolved",
		zap.String("root", root.Path),
		zap.String("marker", string(root.Marker)),
		zap.String("config", cfg.File),
		zap.Int("tools", reg.Len()))
	return nil
}

func teardown() {
	if current.closeLog != nil {
		_ = current.closeLog()
	}
}

// rulesDir is the absolute canonical rules directory.
func (a app) rulesDir() string {
	return config.Path(a.root.Path, a.cfg.RulesDir)
}

// openEngine opens the state store and builds an engine over it. The
// returned close function releases the store.
func (a app) openEngine() (*engine.Engine, func(), error) {
	st, err := state.OpenSQLite(config.Path(a.root.Path, a.cfg.StatePath))
	if err != nil {
		return nil, nil, err
	}
	e, err := engine.New(engine.Config{
		Registry: a.registry,
		State:    st,
		RulesDir: a.cfg.RulesDir,
		Logger:   a.logger,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return e, func() { st.Close() }, nil
}

// toolIDs converts configured tool names, rejecting unknown ones.
func (a app) toolIDs(names []string) ([]registry.ToolID, error) {
	var ids []registry.ToolID
	for _, n := range names {
		id := registry.ToolID(n)
		if !a.registry.Has(id) {
			return nil, fmt.Errorf("%w: %s (see 'agentsync tools')", registry.ErrUnknownTool, n)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var exit exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
	os.Exit(1)
}
