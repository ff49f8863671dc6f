package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentsync/agentsync/internal/registry"
	"github.com/agentsync/agentsync/internal/rules"
)

// frontmatter is the YAML header of per-rule files. Cursor .mdc files use
// description/globs/alwaysApply; Continue rule blocks also carry a name.
type frontmatter struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Globs       string `yaml:"globs,omitempty"`
	AlwaysApply bool   `yaml:"alwaysApply"`
}

// dirCodec writes one file per rule into a directory artifact.
type dirCodec struct {
	format registry.Format
}

func (d dirCodec) compile(tool registry.ToolDescriptor, spec registry.ArtifactSpec, rs []*rules.UniversalRule) []Artifact {
	out := make([]Artifact, 0, len(rs))
	used := make(map[string]bool, len(rs))
	for _, r := range rs {
		name := r.Slug()
		if used[name] {
			name = name + "-" + r.ID[:8]
		}
		used[name] = true
		out = append(out, Artifact{
			Path:    spec.Path + "/" + name + d.format.FileExt(),
			Format:  d.format,
			Content: d.render(tool, r),
			Spec:    spec.Path,
			RuleID:  r.ID,
		})
	}
	return out
}

func (d dirCodec) render(tool registry.ToolDescriptor, r *rules.UniversalRule) []byte {
	var b strings.Builder

	scoped := tool.Capabilities.Context && r.Application.Mode == rules.ModeContext
	fm := frontmatter{AlwaysApply: !scoped}
	if scoped {
		fm.Globs = strings.Join(r.GlobsFor(string(tool.ID)), ",")
	}

	switch d.format {
	case registry.FormatMDCDir:
		fm.Description = oneLine(r.Description)
		if fm.Description == "" {
			fm.Description = oneLine(r.Name)
		}
		writeFrontmatter(&b, fm)
	case registry.FormatMarkdownDir:
		if tool.Capabilities.Context {
			fm.Name = oneLine(r.Name)
			fm.Description = oneLine(r.Description)
			writeFrontmatter(&b, fm)
		}
		fmt.Fprintf(&b, "# %s\n", oneLine(r.Name))
	}

	b.WriteString(ruleMarker(r.ID) + "\n\n")
	writeBody(&b, tool.ID, r)
	return []byte(b.String())
}

func writeFrontmatter(b *strings.Builder, fm frontmatter) {
	data, err := yaml.Marshal(fm)
	if err != nil {
		// frontmatter holds only strings and a bool
		panic(fmt.Sprintf("compiler: marshal frontmatter: %v", err))
	}
	b.WriteString("---\n")
	b.Write(data)
	b.WriteString("---\n")
}

// Per-rule files are always regenerated whole.
func (dirCodec) merge(_, generated []byte) ([]byte, error) {
	return generated, nil
}

func (d dirCodec) parse(data []byte) (*RuleFragment, error) {
	text := string(data)
	f := &RuleFragment{Content: text, Metadata: map[string]string{}}

	rest, err := splitFrontmatter(text, f.Metadata)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(rest, "\n")
	markerAt, id := -1, ""
	for i, line := range lines {
		if m := ruleMarkerRE.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			markerAt, id = i, m[1]
			break
		}
	}
	if markerAt < 0 {
		f.Unattributed = strings.TrimSpace(rest)
		return f, nil
	}

	name := f.Metadata["name"]
	pre := lines[:markerAt]
	if n := len(pre); n > 0 {
		if h, ok := strings.CutPrefix(strings.TrimSpace(pre[n-1]), "# "); ok {
			name = strings.TrimSpace(h)
			pre = pre[:n-1]
		}
	}
	f.Unattributed = strings.TrimSpace(strings.Join(pre, "\n"))

	var body []string
	for _, line := range lines[markerAt+1:] {
		if strings.TrimSpace(line) == examplesMarker {
			break
		}
		body = append(body, strings.TrimRight(line, "\r"))
	}
	f.Sections = []Section{{RuleID: id, Name: name, Body: unescapeMarkers(strings.TrimSpace(strings.Join(body, "\n")))}}
	return f, nil
}

// splitFrontmatter strips a leading "---" YAML block, recording its scalar
// keys in meta. List values are joined with commas.
func splitFrontmatter(text string, meta map[string]string) (string, error) {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return text, nil
	}
	closing := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closing = i
			break
		}
	}
	if closing < 0 {
		return text, nil
	}

	var raw map[string]any
	dec := yaml.NewDecoder(bytes.NewReader([]byte(strings.Join(lines[1:closing], "\n"))))
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("invalid frontmatter: %w", err)
	}
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			meta[k] = strings.Join(parts, ",")
		default:
			meta[k] = fmt.Sprint(val)
		}
	}
	return strings.Join(lines[closing+1:], "\n"), nil
}
