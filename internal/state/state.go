// Package state remembers what agentsync wrote: the digest of every
// artifact it generated or folded back, and a history of sync passes.
//
// The state is a cache, never the source of truth. Losing it only means the
// next pass treats every artifact as first contact.
package state

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("state store is closed")

// DefaultPath is the project-relative location of the state database.
const DefaultPath = ".agentsync/state.db"

// HistoryLimit is the number of passes kept per project root.
const HistoryLimit = 500

// ArtifactRecord is the last known state of one artifact file.
type ArtifactRecord struct {
	Root string
	// Path is project-relative and slash separated.
	Path   string
	Tool   string
	RuleID string
	Digest string
	// Generated is true when the engine wrote the file, false when the file
	// was only observed (folded back).
	Generated bool
	UpdatedAt time.Time
}

// ToolOutcome is one tool's result inside a recorded pass.
type ToolOutcome struct {
	Tool   string `json:"tool"`
	Action string `json:"action"`
	Detail string `json:"detail,omitempty"`
}

// PassRecord is the history entry of one sync pass.
type PassRecord struct {
	ID         int64         `json:"id"`
	Root       string        `json:"root"`
	Trigger    string        `json:"trigger"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Written    int           `json:"written"`
	Merged     int           `json:"merged"`
	Skipped    int           `json:"skipped"`
	Errors     int           `json:"errors"`
	DryRun     bool          `json:"dryRun,omitempty"`
	Error      string        `json:"error,omitempty"`
	Tools      []ToolOutcome `json:"tools,omitempty"`
}

// Duration is the wall time of the pass.
func (p PassRecord) Duration() time.Duration {
	return p.FinishedAt.Sub(p.StartedAt)
}

// Store persists artifact records and pass history.
type Store interface {
	// Artifact returns the record for path under root.
	Artifact(ctx context.Context, root, path string) (ArtifactRecord, bool, error)
	// Artifacts returns every record under root, sorted by path.
	Artifacts(ctx context.Context, root string) ([]ArtifactRecord, error)
	// PutArtifact inserts or replaces a record.
	PutArtifact(ctx context.Context, rec ArtifactRecord) error
	// DeleteArtifact removes a record. Missing records are not an error.
	DeleteArtifact(ctx context.Context, root, path string) error
	// RecordPass appends a pass to the history and sets rec.ID.
	RecordPass(ctx context.Context, rec *PassRecord) error
	// RecentPasses returns up to limit passes under root, newest first.
	RecentPasses(ctx context.Context, root string, limit int) ([]PassRecord, error)
	Close() error
}
