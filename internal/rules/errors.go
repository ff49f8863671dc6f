package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrRuleNotFound is returned when no rule file carries the requested id or name.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrNameCollision is returned when saving a rule whose filename is
	// already owned by a rule with a different id.
	ErrNameCollision = errors.New("rule filename already belongs to a different rule")
)

// LoadError describes one rule file that could not be loaded. LoadAll skips
// such files; they never abort the load.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("invalid rule file %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// DirectoryError means the rules directory itself could not be read. Without
// canonical rules a sync pass has nothing safe to write, so callers treat it
// as fatal.
type DirectoryError struct {
	Dir string
	Err error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("rules directory %s unreadable: %v", e.Dir, e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }

// IsDirectoryError reports whether err is (or wraps) a DirectoryError.
func IsDirectoryError(err error) bool {
	var dirErr *DirectoryError
	return errors.As(err, &dirErr)
}
