package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table lays out rows in left-aligned columns separated by two spaces. Cells
// may already carry styling; widths are measured without escape codes.
func Table(headers []string, rows [][]string) string {
	cols := len(headers)
	for _, r := range rows {
		cols = max(cols, len(r))
	}
	widths := make([]int, cols)
	measure := func(r []string) {
		for i, c := range r {
			widths[i] = max(widths[i], lipgloss.Width(c))
		}
	}
	measure(headers)
	for _, r := range rows {
		measure(r)
	}

	var b strings.Builder
	line := func(r []string, style func(string) string) {
		for i := 0; i < cols; i++ {
			var cell string
			if i < len(r) {
				cell = r[i]
			}
			pad := widths[i] - lipgloss.Width(cell)
			if style != nil {
				cell = style(cell)
			}
			b.WriteString(cell)
			if i < cols-1 {
				b.WriteString(strings.Repeat(" ", pad+2))
			}
		}
		b.WriteString("\n")
	}
	if len(headers) > 0 {
		line(headers, func(s string) string { return headerStyle.Render(s) })
	}
	for _, r := range rows {
		line(r, nil)
	}
	return b.String()
}

// Confidence renders a detection confidence as a percentage, coloured by
// strength.
func Confidence(c float64) string {
	s := fmt.Sprintf("%3.0f%%", c*100)
	switch {
	case c >= 0.75:
		return RenderPass(s)
	case c >= 0.4:
		return RenderWarn(s)
	default:
		return RenderMuted(s)
	}
}

// Action renders a per-tool sync action with its status glyph.
func Action(action string) string {
	switch action {
	case "written", "merged":
		return RenderPass("✓ " + action)
	case "skipped":
		return RenderMuted("· " + action)
	case "error":
		return RenderFail("✗ " + action)
	default:
		return action
	}
}

// Plural returns "n noun" with a trailing s unless n is 1.
func Plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
