package ui

import (
	"strings"
	"testing"
)

func TestTable(t *testing.T) {
	DisableColor()
	got := Table([]string{"TOOL", "CONFIDENCE"}, [][]string{
		{"claude", "100%"},
		{"cursor", "50%"},
	})
	want := "TOOL    CONFIDENCE\n" +
		"claude  100%\n" +
		"cursor  50%\n"
	if got != want {
		t.Errorf("Table() =\n%q\nwant\n%q", got, want)
	}
}

func TestTable_RaggedRows(t *testing.T) {
	DisableColor()
	got := Table(nil, [][]string{{"a", "bb", "c"}, {"dddd"}})
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if lines[0] != "a     bb  c" {
		t.Errorf("first line = %q", lines[0])
	}
	if strings.TrimRight(lines[1], " ") != "dddd" {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestPlainRendering(t *testing.T) {
	DisableColor()
	tests := []struct {
		got, want string
	}{
		{RenderPass("ok"), "ok"},
		{RenderFail("bad"), "bad"},
		{Action("merged"), "✓ merged"},
		{Action("error"), "✗ error"},
		{Action("skipped"), "· skipped"},
		{Confidence(1), "100%"},
		{Confidence(0.5), " 50%"},
		{Plural(1, "rule"), "1 rule"},
		{Plural(3, "rule"), "3 rules"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
