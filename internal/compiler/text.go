package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agentsync/agentsync/internal/registry"
	"github.com/agentsync/agentsync/internal/rules"
)

// Generated-region marker lines. Everything strictly between them belongs to
// agentsync; everything else in a merged file belongs to the tool's user.
const (
	BeginMarker = "<!-- BEGIN AGENTSYNC RULES -->"
	EndMarker   = "<!-- END AGENTSYNC RULES -->"
)

// examplesMarker separates a rule body from its rendered examples.
const examplesMarker = "<!-- rule-examples -->"

var ruleMarkerRE = regexp.MustCompile(`^<!--\s*rule:([0-9A-Za-z-]+)\s*-->$`)

func ruleMarker(id string) string {
	return "<!-- rule:" + id + " -->"
}

// textCodec handles single-file markdown and plaintext artifacts.
type textCodec struct {
	format registry.Format
}

func (t textCodec) compile(tool registry.ToolDescriptor, spec registry.ArtifactSpec, rs []*rules.UniversalRule) []Artifact {
	return []Artifact{{
		Path:    spec.Path,
		Format:  t.format,
		Content: renderRegion(tool.ID, rs),
		Spec:    spec.Path,
	}}
}

func (textCodec) merge(existing, generated []byte) ([]byte, error) {
	return MergeRegion(existing, generated)
}

func (textCodec) parse(data []byte) (*RuleFragment, error) {
	text := string(data)
	loc, err := findRegion(text)
	if err != nil {
		return nil, err
	}
	f := &RuleFragment{Content: text}
	if loc == nil {
		f.Outside = strings.TrimSpace(text)
		return f, nil
	}
	f.HasRegion = true
	before := strings.TrimSpace(text[:loc.beginStart])
	after := strings.TrimSpace(text[loc.endEnd:])
	f.Outside = strings.TrimSpace(before + "\n\n" + after)
	f.Sections, f.Unattributed = parseSections(text[loc.innerStart:loc.innerEnd])
	return f, nil
}

// renderRegion renders the full generated region, marker lines included.
func renderRegion(tool registry.ToolID, rs []*rules.UniversalRule) []byte {
	var b strings.Builder
	b.WriteString(BeginMarker + "\n")
	for _, r := range rs {
		b.WriteString("\n")
		writeSection(&b, tool, r)
	}
	if len(rs) > 0 {
		b.WriteString("\n")
	}
	b.WriteString(EndMarker + "\n")
	return []byte(b.String())
}

func writeSection(b *strings.Builder, tool registry.ToolID, r *rules.UniversalRule) {
	fmt.Fprintf(b, "## %s\n", oneLine(r.Name))
	b.WriteString(ruleMarker(r.ID) + "\n\n")
	writeBody(b, tool, r)
}

// writeBody writes the rule markdown followed by its examples. Lines that
// would read as marker lines are escaped.
func writeBody(b *strings.Builder, tool registry.ToolID, r *rules.UniversalRule) {
	if body := NormalizeBody(r.MarkdownFor(string(tool))); body != "" {
		b.WriteString(escapeMarkers(body) + "\n")
	}
	if len(r.Content.Examples) == 0 {
		return
	}
	b.WriteString("\n" + examplesMarker + "\n")
	for _, ex := range r.Content.Examples {
		b.WriteString("\n")
		if d := NormalizeBody(ex.Description); d != "" {
			b.WriteString(escapeMarkers(d) + "\n\n")
		}
		code := strings.TrimRight(normalizeNewlines(ex.Code), "\n")
		fence := fenceFor(code)
		fmt.Fprintf(b, "%s%s\n%s\n%s\n", fence, ex.Language, escapeMarkers(code), fence)
	}
}

// NormalizeBody trims s and converts CRLF line endings to LF, the form in
// which rule bodies are written and parsed back.
func NormalizeBody(s string) string {
	return strings.TrimSpace(normalizeNewlines(s))
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// isMarkerLine reports whether a trimmed line, ignoring leading backslashes,
// is one of the lines the parser gives meaning to.
func isMarkerLine(trimmed string) bool {
	bare := strings.TrimLeft(trimmed, `\`)
	switch bare {
	case BeginMarker, EndMarker, examplesMarker:
		return true
	}
	return ruleMarkerRE.MatchString(bare)
}

// hasMarkerLines reports whether text holds a line escapeMarkers would change.
func hasMarkerLines(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if isMarkerLine(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

// escapeMarkers prefixes one backslash to every marker-shaped line. Markdown
// renders "\<!--" as literal text, and lines that were already escaped gain
// another backslash, so unescapeMarkers restores the input exactly.
func escapeMarkers(text string) string {
	return mapMarkerLines(text, func(indent, rest string) string {
		return indent + `\` + rest
	})
}

// unescapeMarkers reverses escapeMarkers.
func unescapeMarkers(text string) string {
	return mapMarkerLines(text, func(indent, rest string) string {
		return indent + strings.TrimPrefix(rest, `\`)
	})
}

func mapMarkerLines(text string, fn func(indent, rest string) string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !isMarkerLine(trimmed) {
			continue
		}
		at := strings.Index(line, trimmed)
		lines[i] = fn(line[:at], line[at:])
	}
	return strings.Join(lines, "\n")
}

// fenceFor returns a backtick fence longer than any run inside code.
func fenceFor(code string) string {
	longest, run := 0, 0
	for _, c := range code {
		if c == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type region struct {
	beginStart int // first byte of the begin marker line
	innerStart int // first byte after the begin marker line
	innerEnd   int // first byte of the end marker line
	endEnd     int // first byte after the end marker line
}

// findRegion locates the generated region in text. It returns nil when no
// marker is present and ErrMalformedRegion for any shape other than exactly
// one begin marker followed by exactly one end marker.
func findRegion(text string) (*region, error) {
	type span struct{ start, next int }
	var begins, ends []span

	for offset := 0; offset < len(text); {
		end, next := len(text), len(text)
		if nl := strings.IndexByte(text[offset:], '\n'); nl >= 0 {
			end = offset + nl
			next = end + 1
		}
		switch strings.TrimSpace(text[offset:end]) {
		case BeginMarker:
			begins = append(begins, span{offset, next})
		case EndMarker:
			ends = append(ends, span{offset, next})
		}
		offset = next
	}

	switch {
	case len(begins) == 0 && len(ends) == 0:
		return nil, nil
	case len(begins) == 1 && len(ends) == 1 && begins[0].start < ends[0].start:
		return &region{
			beginStart: begins[0].start,
			innerStart: begins[0].next,
			innerEnd:   ends[0].start,
			endEnd:     ends[0].next,
		}, nil
	case len(begins) == 1 && len(ends) == 1:
		return nil, fmt.Errorf("%w: end marker precedes begin marker", ErrMalformedRegion)
	default:
		return nil, fmt.Errorf("%w: found %d begin and %d end markers", ErrMalformedRegion, len(begins), len(ends))
	}
}

// MergeRegion splices the region of generated into existing. With markers
// present only the bytes between the marker lines change. Without markers the
// region is placed at the top, followed by a blank line and the previous
// content verbatim.
func MergeRegion(existing, generated []byte) ([]byte, error) {
	if len(existing) == 0 {
		return generated, nil
	}
	gen, err := findRegion(string(generated))
	if err != nil || gen == nil {
		return nil, fmt.Errorf("generated content has no region: %w", ErrMalformedRegion)
	}
	loc, err := findRegion(string(existing))
	if err != nil {
		return nil, err
	}

	if loc == nil {
		out := make([]byte, 0, len(generated)+1+len(existing))
		out = append(out, generated...)
		out = append(out, '\n')
		return append(out, existing...), nil
	}

	inner := generated[gen.innerStart:gen.innerEnd]
	out := make([]byte, 0, len(existing)+len(inner))
	out = append(out, existing[:loc.innerStart]...)
	out = append(out, inner...)
	return append(out, existing[loc.innerEnd:]...), nil
}

// parseSections splits region text into rule sections. A section starts at a
// "## " heading immediately followed by a rule marker line; any other heading
// is part of the current body. Text before the first section is returned as
// unattributed.
func parseSections(inner string) ([]Section, string) {
	lines := strings.Split(inner, "\n")

	var (
		sections   []Section
		loose      []string
		cur        *Section
		body       []string
		inExamples bool
	)
	flush := func() {
		if cur != nil {
			cur.Body = unescapeMarkers(strings.TrimSpace(strings.Join(body, "\n")))
			sections = append(sections, *cur)
		}
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")
		if name, ok := strings.CutPrefix(line, "## "); ok && i+1 < len(lines) {
			if m := ruleMarkerRE.FindStringSubmatch(strings.TrimSpace(lines[i+1])); m != nil {
				flush()
				cur = &Section{RuleID: m[1], Name: strings.TrimSpace(name)}
				body, inExamples = nil, false
				i++
				continue
			}
		}
		switch {
		case cur == nil:
			loose = append(loose, line)
		case strings.TrimSpace(line) == examplesMarker:
			inExamples = true
		case !inExamples:
			body = append(body, line)
		}
	}
	flush()

	return sections, strings.TrimSpace(strings.Join(loose, "\n"))
}
