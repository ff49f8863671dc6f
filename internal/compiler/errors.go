package compiler

import "errors"

var (
	// ErrMalformedRegion means a text artifact has an unusable set of
	// generated-region markers: one marker only, repeated markers, or the end
	// marker before the begin marker. The artifact must be left untouched.
	ErrMalformedRegion = errors.New("malformed generated region")

	// ErrUnsupportedFormat is returned for an artifact format with no codec.
	ErrUnsupportedFormat = errors.New("unsupported artifact format")

	// ErrUnknownArtifact is returned when a path belongs to none of a tool's
	// artifacts.
	ErrUnknownArtifact = errors.New("path is not an artifact of this tool")

	// ErrUnmergeableYAML means an existing YAML artifact cannot be merged
	// structurally (for example its top level is not a mapping).
	ErrUnmergeableYAML = errors.New("cannot merge YAML artifact")
)
