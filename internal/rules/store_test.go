package rules

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// setupStore returns a store with a fixed clock and an empty rules directory.
func setupStore(t *testing.T) (*Store, string) {
	t.Helper()
	s := NewStore(zaptest.NewLogger(t))
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return clock })
	return s, filepath.Join(t.TempDir(), "rules")
}

func TestStore_SaveAndLoad(t *testing.T) {
	s, dir := setupStore(t)
	rule := validRule()

	if err := s.Save(dir, rule); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "use-parameterized-queries.json"))
	if err != nil {
		t.Fatalf("rule file not written: %v", err)
	}
	if data[len(data)-1] != '\n' {
		t.Error("rule file should end with a newline")
	}

	loaded, err := s.LoadAll(dir)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("LoadAll() returned %d rules, want 1", len(loaded))
	}
	got := loaded[0]
	if got.ID != rule.ID || got.Name != rule.Name || got.Content.Markdown != rule.Content.Markdown {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if !got.HasTag("security") {
		t.Error("tags lost in round trip")
	}
	if got.Metadata.Updated.Before(got.Metadata.Created) {
		t.Error("updated must not precede created")
	}
}

func TestStore_SaveStampsUpdated(t *testing.T) {
	s, dir := setupStore(t)
	rule := validRule()
	rule.Metadata.Created = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rule.Metadata.Updated = rule.Metadata.Created

	if err := s.Save(dir, rule); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !rule.Metadata.Updated.Equal(want) {
		t.Errorf("Updated = %v, want %v", rule.Metadata.Updated, want)
	}

	// A clock behind Created must not break the invariant.
	future := NewRule("future rule", "x")
	future.Metadata.Created = want.Add(24 * time.Hour)
	if err := s.Save(dir, future); err != nil {
		t.Fatalf("Save(future) error = %v", err)
	}
	if future.Metadata.Updated.Before(future.Metadata.Created) {
		t.Error("Save produced updated < created")
	}
}

func TestStore_NameCollision(t *testing.T) {
	s, dir := setupStore(t)
	first := validRule()
	if err := s.Save(dir, first); err != nil {
		t.Fatalf("Save(first) error = %v", err)
	}

	second := NewRule("use parameterized   QUERIES", "different body")
	err := s.Save(dir, second)
	if !errors.Is(err, ErrNameCollision) {
		t.Fatalf("Save(second) error = %v, want ErrNameCollision", err)
	}

	loaded, err := s.Get(dir, first.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.Content.Markdown != first.Content.Markdown {
		t.Error("colliding save overwrote the existing rule")
	}
}

func TestStore_ResaveSameID(t *testing.T) {
	s, dir := setupStore(t)
	rule := validRule()
	if err := s.Save(dir, rule); err != nil {
		t.Fatal(err)
	}

	rule.Content.Markdown = "updated body"
	if err := s.Save(dir, rule); err != nil {
		t.Fatalf("re-save with same id error = %v", err)
	}

	loaded, _ := s.Get(dir, rule.ID)
	if loaded.Content.Markdown != "updated body" {
		t.Errorf("Markdown = %q, want updated body", loaded.Content.Markdown)
	}
}

func TestStore_Rename(t *testing.T) {
	s, dir := setupStore(t)
	rule := validRule()
	if err := s.Save(dir, rule); err != nil {
		t.Fatal(err)
	}

	rule.Name = "SQL injection prevention"
	if err := s.Save(dir, rule); err != nil {
		t.Fatalf("Save(renamed) error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "use-parameterized-queries.json")); !os.IsNotExist(err) {
		t.Error("old file should be removed after rename")
	}
	if _, err := os.Stat(filepath.Join(dir, "sql-injection-prevention.json")); err != nil {
		t.Errorf("renamed file missing: %v", err)
	}

	all, _ := s.LoadAll(dir)
	if len(all) != 1 {
		t.Errorf("LoadAll() = %d rules after rename, want 1", len(all))
	}
}

func TestStore_PartialFailure(t *testing.T) {
	s, dir := setupStore(t)
	a := NewRule("rule a", "a")
	b := NewRule("rule b", "b")
	c := NewRule("rule c", "c")
	for _, r := range []*UniversalRule{a, b, c} {
		if err := s.Save(dir, r); err != nil {
			t.Fatal(err)
		}
	}

	// Corrupt one file
	if err := os.WriteFile(filepath.Join(dir, "rule-b.json"), []byte("{ not json"), 0644); err != nil {
		t.Fatal(err)
	}
	// Schema-invalid file
	bad := NewRule("rule d", "d")
	data, _ := json.Marshal(bad)
	data = []byte(strings.Replace(string(data), `"priority":"medium"`, `"priority":"urgent"`, 1))
	if err := os.WriteFile(filepath.Join(dir, "rule-d.json"), data, 0644); err != nil {
		t.Fatal(err)
	}
	// Non-json files are ignored entirely
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0644); err != nil {
		t.Fatal(err)
	}

	report, err := s.Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(report.Rules) != 2 {
		t.Fatalf("Load() returned %d rules, want 2", len(report.Rules))
	}
	if report.Rules[0].ID != a.ID || report.Rules[1].ID != c.ID {
		t.Error("valid rules were not returned unchanged")
	}
	if len(report.Skipped) != 2 {
		t.Errorf("Skipped = %d, want 2", len(report.Skipped))
	}
}

func TestStore_DuplicateIDSkipped(t *testing.T) {
	s, dir := setupStore(t)
	rule := NewRule("alpha", "a")
	if err := s.Save(dir, rule); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "alpha.json"))
	if err := os.WriteFile(filepath.Join(dir, "beta.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	report, err := s.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Rules) != 1 || len(report.Skipped) != 1 {
		t.Errorf("got %d rules / %d skipped, want 1 / 1", len(report.Rules), len(report.Skipped))
	}
}

func TestStore_MissingDirectory(t *testing.T) {
	s, dir := setupStore(t)
	rules, err := s.LoadAll(dir)
	if err != nil {
		t.Fatalf("LoadAll() on missing dir error = %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("LoadAll() = %d rules, want 0", len(rules))
	}
}

func TestStore_UnreadableDirectory(t *testing.T) {
	s, _ := setupStore(t)
	notADir := filepath.Join(t.TempDir(), "rules")
	if err := os.WriteFile(notADir, []byte("file"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := s.LoadAll(notADir)
	if err == nil {
		t.Fatal("expected error for unreadable rules directory")
	}
	if !IsDirectoryError(err) {
		t.Errorf("error = %v, want *DirectoryError", err)
	}
}

func TestStore_Delete(t *testing.T) {
	s, dir := setupStore(t)
	rule := validRule()
	if err := s.Save(dir, rule); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Delete(dir, rule.ID)
	if err != nil || !removed {
		t.Fatalf("Delete() = (%v, %v), want (true, nil)", removed, err)
	}
	removed, err = s.Delete(dir, rule.ID)
	if err != nil || removed {
		t.Errorf("second Delete() = (%v, %v), want (false, nil)", removed, err)
	}
	if _, err := s.Get(dir, rule.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrRuleNotFound", err)
	}
}

func TestStore_FindByName(t *testing.T) {
	s, dir := setupStore(t)
	rule := validRule()
	if err := s.Save(dir, rule); err != nil {
		t.Fatal(err)
	}

	got, err := s.FindByName(dir, "use parameterized queries")
	if err != nil {
		t.Fatalf("FindByName() error = %v", err)
	}
	if got.ID != rule.ID {
		t.Errorf("FindByName() id = %s, want %s", got.ID, rule.ID)
	}
	if _, err := s.FindByName(dir, "nothing here"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("FindByName(missing) error = %v, want ErrRuleNotFound", err)
	}
}

func TestStore_SaveRejectsInvalid(t *testing.T) {
	s, dir := setupStore(t)
	rule := validRule()
	rule.Content.Priority = "urgent"
	if err := s.Save(dir, rule); err == nil {
		t.Error("expected Save() to reject an invalid rule")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("invalid rule should not create any files")
	}
}
