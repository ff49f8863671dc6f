// Package engine runs synchronization passes: detect the tools present in a
// project, load the canonical rules, optionally fold externally edited
// artifacts back into them, then compile and write every tool's artifacts.
//
// A pass never fails as a whole because of one tool or one rule file; only an
// unreadable rules directory aborts it. Passes on the same project root are
// serialized.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/agentsync/agentsync/internal/compiler"
	"github.com/agentsync/agentsync/internal/detect"
	"github.com/agentsync/agentsync/internal/registry"
	"github.com/agentsync/agentsync/internal/rules"
	"github.com/agentsync/agentsync/internal/state"
)

// Pass triggers.
const (
	TriggerManual = "manual"
	TriggerWatch  = "watch"
)

// Options control one pass.
type Options struct {
	// AutoSync folds externally edited artifacts back into the canonical
	// rules before compiling.
	AutoSync bool
	// CreateMissing creates required artifacts that do not exist and
	// recreates per-rule files the user removed. Only explicit full syncs
	// set it.
	CreateMissing bool
	// DryRun computes every action without touching disk or state.
	DryRun bool
	// Tools restricts the pass to these ids. Empty means every detected tool.
	Tools []registry.ToolID
	// Trigger labels the pass in history.
	Trigger string
}

// FullSync returns the options of an explicit, user-requested sync.
func FullSync() Options {
	return Options{CreateMissing: true, Trigger: TriggerManual}
}

// Incremental returns the options of a watcher-triggered pass. It never
// creates missing artifacts.
func Incremental(autoSync bool) Options {
	return Options{AutoSync: autoSync, Trigger: TriggerWatch}
}

// Config configures an Engine.
type Config struct {
	// Registry defaults to registry.Default().
	Registry *registry.Registry
	// State defaults to an in-memory store.
	State state.Store
	// RulesDir is relative to the project root unless absolute. Defaults to
	// rules.DefaultDir.
	RulesDir string
	Logger   *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Engine runs sync passes. It is safe for concurrent use.
type Engine struct {
	registry  *registry.Registry
	detector  *detect.Detector
	store     *rules.Store
	compilers map[registry.ToolID]*compiler.Compiler
	state     state.Store
	rulesDir  string
	logger    *zap.Logger
	now       func() time.Time
}

// New builds an Engine, resolving a compiler for every registered tool.
func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		cfg.Registry = registry.Default()
	}
	if cfg.State == nil {
		cfg.State = state.NewMemory()
	}
	if cfg.RulesDir == "" {
		cfg.RulesDir = rules.DefaultDir
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}

	compilers, err := compiler.ForRegistry(cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to build compilers: %w", err)
	}

	logger := cfg.Logger.Named("engine")
	store := rules.NewStore(logger.Named("rules"))
	store.SetClock(cfg.Clock)

	return &Engine{
		registry:  cfg.Registry,
		detector:  detect.New(cfg.Registry, logger, detect.WithClock(cfg.Clock)),
		store:     store,
		compilers: compilers,
		state:     cfg.State,
		rulesDir:  cfg.RulesDir,
		logger:    logger,
		now:       cfg.Clock,
	}, nil
}

// Registry returns the tool registry the engine compiles for.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// RulesDir resolves the rules directory for root.
func (e *Engine) RulesDir(root string) string {
	if filepath.IsAbs(e.rulesDir) {
		return e.rulesDir
	}
	return filepath.Join(root, filepath.FromSlash(e.rulesDir))
}

// Detect runs detection only.
func (e *Engine) Detect(root string) []detect.DetectedTool {
	return e.detector.Detect(root)
}

// Run executes one pass over root.
//
// The returned SyncResult is never nil. The error is non-nil only when the
// pass failed as a whole (see IsFatal); per-tool failures are reported in the
// result.
func (e *Engine) Run(ctx context.Context, root string, opts Options) (*SyncResult, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	if opts.Trigger == "" {
		opts.Trigger = TriggerManual
	}
	result := &SyncResult{Root: abs, Trigger: opts.Trigger, DryRun: opts.DryRun}

	for _, id := range opts.Tools {
		if !e.registry.Has(id) {
			result.Error = fmt.Sprintf("%s: %s", registry.ErrUnknownTool, id)
			return result, fmt.Errorf("%w: %s", registry.ErrUnknownTool, id)
		}
	}

	unlock := lockProject(abs)
	defer unlock()

	result.StartedAt = e.now()
	log := e.logger.With(zap.String("root", abs), zap.String("trigger", opts.Trigger))
	log.Debug("pass started", zap.Bool("auto_sync", opts.AutoSync), zap.Bool("dry_run", opts.DryRun))

	// Detecting
	detected := e.selectTools(e.detector.Detect(abs), opts.Tools)

	// Loading
	rulesDir := e.RulesDir(abs)
	report, err := e.store.Load(rulesDir)
	if err != nil {
		result.Error = err.Error()
		result.FinishedAt = e.now()
		e.recordPass(ctx, result, log)
		log.Error("pass aborted: canonical rules unavailable", zap.Error(err))
		return result, fmt.Errorf("sync aborted: %w", err)
	}
	for _, s := range report.Skipped {
		result.SkippedRuleFiles = append(result.SkippedRuleFiles, s.Path)
	}
	current := report.Rules

	if opts.AutoSync {
		current = e.foldBack(ctx, abs, rulesDir, detected, current, opts, result, log)
	}
	result.Rules = len(current)

	// Compiling / merging / writing, one tool at a time.
	for _, tool := range detected {
		if ctx.Err() != nil {
			result.Tools = append(result.Tools, ToolResult{
				Tool: tool.Tool, Name: tool.Name, Confidence: tool.Confidence,
				Action: ActionSkipped, Detail: "pass cancelled",
			})
			continue
		}
		var tr ToolResult
		if len(current) == 0 {
			tr = ToolResult{Tool: tool.Tool, Name: tool.Name, Confidence: tool.Confidence,
				Action: ActionSkipped, Detail: "no canonical rules"}
		} else {
			tr = e.syncTool(ctx, abs, tool, current, opts, log)
		}
		result.Tools = append(result.Tools, tr)
	}

	// Reporting
	result.count()
	result.FinishedAt = e.now()
	e.recordPass(ctx, result, log)

	log.Info("pass complete",
		zap.Int("tools", len(result.Tools)),
		zap.Int("written", result.Written),
		zap.Int("merged", result.Merged),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors),
		zap.Int("folded", len(result.Folded)),
		zap.Duration("took", result.FinishedAt.Sub(result.StartedAt)))
	return result, nil
}

func (e *Engine) selectTools(detected []detect.DetectedTool, only []registry.ToolID) []detect.DetectedTool {
	out := detected[:0:0]
	for _, t := range detected {
		if t.Confidence <= 0 {
			continue
		}
		if len(only) > 0 && !slices.Contains(only, t.Tool) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (e *Engine) recordPass(ctx context.Context, result *SyncResult, log *zap.Logger) {
	if result.DryRun {
		return
	}
	// History must survive a cancelled watcher context.
	if err := e.state.RecordPass(context.WithoutCancel(ctx), result.record()); err != nil {
		log.Warn("failed to record pass history", zap.Error(err))
	}
}
