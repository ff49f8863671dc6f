package daemon

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyWatching is returned when a watcher already runs for a root.
	ErrAlreadyWatching = errors.New("project is already being watched")
	// ErrNotWatching is returned when stopping a handle that is not active.
	ErrNotWatching = errors.New("project is not being watched")
)

// SetupError means a watcher could not start. Nothing is left running.
type SetupError struct {
	Root string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("failed to start watcher for %s: %v", e.Root, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// IsSetupError reports whether err is (or wraps) a SetupError.
func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}
