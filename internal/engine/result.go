package engine

import (
	"time"

	"github.com/agentsync/agentsync/internal/compiler"
	"github.com/agentsync/agentsync/internal/registry"
	"github.com/agentsync/agentsync/internal/state"
)

// Action is the per-tool outcome of a pass.
type Action string

const (
	ActionWritten Action = "written"
	ActionMerged  Action = "merged"
	ActionSkipped Action = "skipped"
	ActionError   Action = "error"
)

// ArtifactAction is the outcome for one artifact file.
type ArtifactAction string

const (
	ArtifactCreated   ArtifactAction = "created"
	ArtifactUpdated   ArtifactAction = "updated"
	ArtifactUnchanged ArtifactAction = "unchanged"
	// ArtifactMissing means the file does not exist and the pass was not
	// allowed to create it.
	ArtifactMissing ArtifactAction = "missing"
	// ArtifactPruned means a generated per-rule file was removed because its
	// rule no longer exists.
	ArtifactPruned ArtifactAction = "pruned"
	ArtifactFailed ArtifactAction = "failed"
)

func (a ArtifactAction) changed() bool {
	return a == ArtifactCreated || a == ArtifactUpdated || a == ArtifactPruned
}

// ArtifactResult reports one artifact file.
type ArtifactResult struct {
	Path   string         `json:"path"`
	Action ArtifactAction `json:"action"`
	Error  string         `json:"error,omitempty"`
}

// ToolResult reports one tool.
type ToolResult struct {
	Tool       registry.ToolID    `json:"tool"`
	Name       string             `json:"name"`
	Confidence float64            `json:"confidence"`
	Action     Action             `json:"action"`
	Detail     string             `json:"detail,omitempty"`
	Error      string             `json:"error,omitempty"`
	Artifacts  []ArtifactResult   `json:"artifacts,omitempty"`
	Warnings   []compiler.Warning `json:"warnings,omitempty"`

	err error
}

// Err returns the tool's error, if its action is ActionError.
func (t ToolResult) Err() error {
	return t.err
}

// FoldedRule records a canonical rule created or updated from an artifact.
type FoldedRule struct {
	RuleID  string          `json:"ruleId"`
	Name    string          `json:"name"`
	Tool    registry.ToolID `json:"tool"`
	Path    string          `json:"path"`
	Created bool            `json:"created"`
}

// SyncResult is the structured outcome of exactly one pass.
type SyncResult struct {
	Root       string    `json:"root"`
	Trigger    string    `json:"trigger"`
	DryRun     bool      `json:"dryRun,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Tools []ToolResult `json:"tools"`

	Written int `json:"written"`
	Merged  int `json:"merged"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`

	// Rules is the number of canonical rules compiled.
	Rules int `json:"rules"`
	// SkippedRuleFiles lists rule files that failed to load.
	SkippedRuleFiles []string     `json:"skippedRuleFiles,omitempty"`
	Folded           []FoldedRule `json:"folded,omitempty"`

	// Error is set when the pass failed as a whole.
	Error string `json:"error,omitempty"`
}

// Tool returns the result for id.
func (r *SyncResult) Tool(id registry.ToolID) (ToolResult, bool) {
	for _, t := range r.Tools {
		if t.Tool == id {
			return t, true
		}
	}
	return ToolResult{}, false
}

// Changed reports whether the pass modified any tool artifact.
func (r *SyncResult) Changed() bool {
	return r.Written+r.Merged > 0
}

func (r *SyncResult) count() {
	r.Written, r.Merged, r.Skipped, r.Errors = 0, 0, 0, 0
	for _, t := range r.Tools {
		switch t.Action {
		case ActionWritten:
			r.Written++
		case ActionMerged:
			r.Merged++
		case ActionSkipped:
			r.Skipped++
		case ActionError:
			r.Errors++
		}
	}
}

func (r *SyncResult) record() *state.PassRecord {
	rec := &state.PassRecord{
		Root:       r.Root,
		Trigger:    r.Trigger,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Written:    r.Written,
		Merged:     r.Merged,
		Skipped:    r.Skipped,
		Errors:     r.Errors,
		DryRun:     r.DryRun,
		Error:      r.Error,
	}
	for _, t := range r.Tools {
		detail := t.Detail
		if t.Error != "" {
			detail = t.Error
		}
		rec.Tools = append(rec.Tools, state.ToolOutcome{Tool: string(t.Tool), Action: string(t.Action), Detail: detail})
	}
	return rec
}
