package registry

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrUnknownTool is returned by Describe for an identifier not in the registry.
var ErrUnknownTool = errors.New("unknown tool identifier")

// Registry is an immutable, ordered lookup table of tool descriptors.
// It is safe for concurrent use because it is never modified after New.
type Registry struct {
	order []ToolID
	byID  map[ToolID]ToolDescriptor
}

// New builds a registry from descriptors in the given order.
// Every identifier must be unique and every descriptor valid.
func New(descriptors ...ToolDescriptor) (*Registry, error) {
	r := &Registry{
		order: make([]ToolID, 0, len(descriptors)),
		byID:  make(map[ToolID]ToolDescriptor, len(descriptors)),
	}
	for _, d := range descriptors {
		if err := validateDescriptor(d); err != nil {
			return nil, err
		}
		if _, exists := r.byID[d.ID]; exists {
			return nil, fmt.Errorf("registry: tool %q declared twice", d.ID)
		}
		r.order = append(r.order, d.ID)
		r.byID[d.ID] = cloneDescriptor(d)
	}
	return r, nil
}

// Default returns a registry holding only the built-in tools.
func Default() *Registry {
	r, err := New(builtins...)
	if err != nil {
		panic(fmt.Sprintf("registry: invalid built-in table: %v", err))
	}
	return r
}

// Describe returns the descriptor registered for id.
func (r *Registry) Describe(id ToolID) (ToolDescriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return ToolDescriptor{}, fmt.Errorf("%w: %s", ErrUnknownTool, id)
	}
	return cloneDescriptor(d), nil
}

// All returns every descriptor in declaration order.
func (r *Registry) All() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, cloneDescriptor(r.byID[id]))
	}
	return out
}

// IDs returns the registered identifiers in declaration order.
func (r *Registry) IDs() []ToolID {
	return append([]ToolID(nil), r.order...)
}

// Has reports whether id is registered.
func (r *Registry) Has(id ToolID) bool {
	_, ok := r.byID[id]
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// overridesFile is the layout of .agentsync/tools.toml.
type overridesFile struct {
	Tools []ToolDescriptor `toml:"tool"`
}

// LoadOverrides decodes custom tool declarations from a TOML file.
// A missing file yields no descriptors and no error.
func LoadOverrides(path string) ([]ToolDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tool overrides %s: %w", path, err)
	}

	var file overridesFile
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, fmt.Errorf("failed to parse tool overrides %s: %w", path, err)
	}

	for i := range file.Tools {
		d := &file.Tools[i]
		d.Custom = true
		if d.Strategy == "" {
			d.Strategy = StrategyOverwrite
		}
		if d.DisplayName == "" {
			d.DisplayName = string(d.ID)
		}
		if !d.Capabilities.Rules {
			d.Capabilities.Rules = true
		}
		for _, a := range d.Artifacts {
			if a.Format != FormatMarkdown && a.Format != FormatPlaintext {
				return nil, fmt.Errorf("custom tool %q: artifact %s uses format %q, only markdown and plaintext are supported",
					d.ID, a.Path, a.Format)
			}
		}
	}
	return file.Tools, nil
}

// WithOverrides returns the built-in registry extended by the custom tools in
// the TOML file at path.
func WithOverrides(path string) (*Registry, error) {
	custom, err := LoadOverrides(path)
	if err != nil {
		return nil, err
	}
	all := append(append([]ToolDescriptor(nil), builtins...), custom...)
	return New(all...)
}

func validateDescriptor(d ToolDescriptor) error {
	if d.ID == "" {
		return fmt.Errorf("registry: tool id is required")
	}
	if len(d.Artifacts) == 0 {
		return fmt.Errorf("registry: tool %q declares no artifacts", d.ID)
	}
	switch d.Strategy {
	case StrategyOverwrite, StrategyMerge:
	default:
		return fmt.Errorf("registry: tool %q has invalid strategy %q", d.ID, d.Strategy)
	}
	for _, p := range append(append([]string(nil), d.Files...), d.Dirs...) {
		if err := validateRelPath(p); err != nil {
			return fmt.Errorf("registry: tool %q candidate: %w", d.ID, err)
		}
	}
	for _, a := range d.Artifacts {
		if err := validateRelPath(a.Path); err != nil {
			return fmt.Errorf("registry: tool %q artifact: %w", d.ID, err)
		}
		switch a.Format {
		case FormatMarkdown, FormatPlaintext, FormatYAML, FormatMDCDir, FormatMarkdownDir:
		default:
			return fmt.Errorf("registry: tool %q artifact %s has unknown format %q", d.ID, a.Path, a.Format)
		}
	}
	return nil
}

func validateRelPath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return fmt.Errorf("path %q must be relative and slash separated", p)
	}
	if clean := path.Clean(p); clean != p || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path %q is not clean or escapes the project root", p)
	}
	return nil
}

func cloneDescriptor(d ToolDescriptor) ToolDescriptor {
	d.Files = append([]string(nil), d.Files...)
	d.Dirs = append([]string(nil), d.Dirs...)
	d.Artifacts = append([]ArtifactSpec(nil), d.Artifacts...)
	return d
}
