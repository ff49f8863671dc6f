package compiler

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentsync/agentsync/internal/registry"
	"github.com/agentsync/agentsync/internal/rules"
)

// readKey is the aider configuration key listing read-only context files.
const readKey = "read"

// yamlCodec keeps a tool's YAML configuration pointing at the tool's
// markdown artifacts. Merging edits the document node tree so unrelated keys
// and comments survive.
type yamlCodec struct{}

func (yamlCodec) compile(tool registry.ToolDescriptor, spec registry.ArtifactSpec, _ []*rules.UniversalRule) []Artifact {
	var reads []string
	for _, a := range tool.Artifacts {
		if a.Format == registry.FormatMarkdown || a.Format == registry.FormatPlaintext {
			reads = append(reads, a.Path)
		}
	}
	data, err := encodeYAML(map[string][]string{readKey: reads})
	if err != nil {
		panic(fmt.Sprintf("compiler: encode yaml: %v", err))
	}
	return []Artifact{{Path: spec.Path, Format: registry.FormatYAML, Content: data, Spec: spec.Path}}
}

func (yamlCodec) merge(existing, generated []byte) ([]byte, error) {
	if len(bytes.TrimSpace(existing)) == 0 {
		return generated, nil
	}

	var want map[string][]string
	if err := yaml.Unmarshal(generated, &want); err != nil {
		return nil, fmt.Errorf("generated YAML: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(existing, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnmergeableYAML, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || isNull(doc.Content[0]) {
		// Comments only: keep them and append the generated keys.
		out := append([]byte{}, existing...)
		if !bytes.HasSuffix(out, []byte("\n")) {
			out = append(out, '\n')
		}
		return append(out, generated...), nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level is not a mapping", ErrUnmergeableYAML)
	}
	changed, err := ensureSequence(root, readKey, want[readKey])
	if err != nil {
		return nil, err
	}
	if !changed {
		return existing, nil
	}
	return encodeYAML(&doc)
}

func (yamlCodec) parse(data []byte) (*RuleFragment, error) {
	f := &RuleFragment{Content: string(data), Metadata: map[string]string{}}
	var conf map[string]any
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	switch v := conf[readKey].(type) {
	case string:
		f.Metadata[readKey] = v
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
		f.Metadata[readKey] = strings.Join(parts, ",")
	}
	return f, nil
}

// ensureSequence makes mapping[key] a sequence containing every value,
// keeping existing entries and their order. A scalar value is promoted to a
// one-element sequence.
func ensureSequence(mapping *yaml.Node, key string, values []string) (bool, error) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != key {
			continue
		}
		val := mapping.Content[i+1]
		switch val.Kind {
		case yaml.ScalarNode:
			if val.Tag == "!!null" || val.Value == "" {
				mapping.Content[i+1] = sequenceNode(values)
				return true, nil
			}
			if len(values) == 1 && val.Value == values[0] {
				return false, nil
			}
			seq := sequenceNode([]string{val.Value})
			seq.Content[0].HeadComment = val.HeadComment
			seq.Content[0].LineComment = val.LineComment
			appendMissing(seq, values)
			mapping.Content[i+1] = seq
			return true, nil
		case yaml.SequenceNode:
			return appendMissing(val, values), nil
		default:
			return false, fmt.Errorf("%w: %q is neither a string nor a list", ErrUnmergeableYAML, key)
		}
	}

	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		sequenceNode(values),
	)
	return true, nil
}

func appendMissing(seq *yaml.Node, values []string) bool {
	var have []string
	for _, n := range seq.Content {
		have = append(have, n.Value)
	}
	changed := false
	for _, v := range values {
		if !slices.Contains(have, v) {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v})
			changed = true
		}
	}
	return changed
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

func sequenceNode(values []string) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, v := range values {
		seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v})
	}
	return seq
}

func encodeYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
