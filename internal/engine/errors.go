package engine

import (
	"errors"
	"fmt"

	"github.com/agentsync/agentsync/internal/registry"
	"github.com/agentsync/agentsync/internal/rules"
)

// ArtifactError is an I/O or merge failure on one tool artifact. It fails
// that tool only.
type ArtifactError struct {
	Tool registry.ToolID
	Path string
	Err  error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Tool, e.Path, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// IsFatal reports whether err aborted a whole pass. Only an unavailable
// canonical rule source does.
func IsFatal(err error) bool {
	return rules.IsDirectoryError(err)
}

// IsArtifactError reports whether err is (or wraps) an ArtifactError.
func IsArtifactError(err error) bool {
	var ae *ArtifactError
	return errors.As(err, &ae)
}
