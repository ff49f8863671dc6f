// Package project locates the root of the project agentsync operates on.
package project

import (
	"errors"
	"os"
	"path/filepath"
)

// ConfigDir is the per-project agentsync directory.
const ConfigDir = ".agentsync"

// ErrNotFound is returned by Find when no marker exists in any parent.
var ErrNotFound = errors.New("no project root found")

// Marker identifies what made a directory a project root.
type Marker string

const (
	MarkerAgentsync Marker = ConfigDir
	MarkerJJ        Marker = ".jj"
	MarkerGit       Marker = ".git"
	// MarkerNone means no marker was found and the start directory was used.
	MarkerNone Marker = ""
)

// Root is a resolved project root.
type Root struct {
	Path   string
	Marker Marker
	// Worktree is set when .git is a file (git worktree or submodule).
	Worktree bool
}

// Find walks up from start to the nearest directory containing .agentsync,
// .jj or .git. An .agentsync directory takes precedence over VCS markers in
// the same directory, and the nearest directory wins overall.
func Find(start string) (*Root, error) {
	current, err := filepath.Abs(start)
	if err != nil {
		return nil, err
	}

	for {
		if isDir(filepath.Join(current, ConfigDir)) {
			return &Root{Path: current, Marker: MarkerAgentsync}, nil
		}
		if isDir(filepath.Join(current, ".jj")) {
			return &Root{Path: current, Marker: MarkerJJ}, nil
		}
		if info, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return &Root{Path: current, Marker: MarkerGit, Worktree: info.Mode().IsRegular()}, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return nil, ErrNotFound
		}
		current = parent
	}
}

// Resolve is Find, falling back to start itself when no marker exists.
func Resolve(start string) (*Root, error) {
	root, err := Find(start)
	if err == nil {
		return root, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	abs, err := filepath.Abs(start)
	if err != nil {
		return nil, err
	}
	return &Root{Path: abs, Marker: MarkerNone}, nil
}

// Dir returns the root's .agentsync directory.
func (r *Root) Dir() string {
	return filepath.Join(r.Path, ConfigDir)
}

// Join resolves a project-relative slash path under the root. Absolute paths
// are returned unchanged.
func (r *Root) Join(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(r.Path, filepath.FromSlash(rel))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
