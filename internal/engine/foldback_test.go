package engine

import (
	"testing"

	"github.com/agentsync/agentsync/internal/rules"
)

func TestRuleSet_ImportTarget(t *testing.T) {
	manual := func(name string) *rules.UniversalRule { return rules.NewRule(name, "body") }
	imported := func(name string) *rules.UniversalRule {
		r := rules.NewRule(name, "body")
		r.Content.Tags = []string{ImportedTag}
		return r
	}

	tests := []struct {
		name      string
		existing  []*rules.UniversalRule
		wantName  string
		wantReuse int // index into existing, -1 for a new rule
	}{
		{
			name:      "free name",
			wantName:  "security",
			wantReuse: -1,
		},
		{
			name:      "earlier import is extended",
			existing:  []*rules.UniversalRule{imported("Security")},
			wantName:  "security",
			wantReuse: 0,
		},
		{
			name:      "manual rule is never extended",
			existing:  []*rules.UniversalRule{manual("Security")},
			wantName:  "security (cursor)",
			wantReuse: -1,
		},
		{
			name:      "qualified import is extended",
			existing:  []*rules.UniversalRule{manual("Security"), imported("security (cursor)")},
			wantName:  "security (cursor)",
			wantReuse: 1,
		},
		{
			name:      "qualified name taken by a manual rule",
			existing:  []*rules.UniversalRule{manual("Security"), manual("Security (cursor)")},
			wantName:  "security (cursor 2)",
			wantReuse: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := newRuleSet(tt.existing)
			name, got := set.importTarget("security", "cursor")
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			switch {
			case tt.wantReuse < 0 && got != nil:
				t.Errorf("reused %q, want a new rule", got.Name)
			case tt.wantReuse >= 0 && got != tt.existing[tt.wantReuse]:
				t.Errorf("reused %v, want %q", got, tt.existing[tt.wantReuse].Name)
			}
		})
	}
}
