package engine

import (
	"context"
	"path/filepath"

	"github.com/agentsync/agentsync/internal/detect"
	"github.com/agentsync/agentsync/internal/registry"
	"github.com/agentsync/agentsync/internal/state"
)

// DetectTools reports the built-in tools present under projectRoot.
func DetectTools(projectRoot string) []detect.DetectedTool {
	return detect.New(registry.Default(), nil).Detect(projectRoot)
}

// RunSync runs one explicit full pass over projectRoot with the default
// registry, rules directory and on-disk state. autoSync enables fold-back of
// externally edited artifacts.
func RunSync(ctx context.Context, projectRoot string, autoSync bool) (*SyncResult, error) {
	st, err := state.OpenSQLite(filepath.Join(projectRoot, filepath.FromSlash(state.DefaultPath)))
	if err != nil {
		return &SyncResult{Root: projectRoot, Error: err.Error()}, err
	}
	defer st.Close()

	e, err := New(Config{State: st})
	if err != nil {
		return &SyncResult{Root: projectRoot, Error: err.Error()}, err
	}
	opts := FullSync()
	opts.AutoSync = autoSync
	return e.Run(ctx, projectRoot, opts)
}
