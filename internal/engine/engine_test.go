package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/agentsync/agentsync/internal/compiler"
	"github.com/agentsync/agentsync/internal/registry"
	"github.com/agentsync/agentsync/internal/rules"
	"github.com/agentsync/agentsync/internal/state"
)

// setupProject returns an empty project root and an engine over it backed by
// an in-memory state store.
func setupProject(t *testing.T) (string, *Engine, *state.MemoryStore) {
	t.Helper()
	root := t.TempDir()
	st := state.NewMemory()
	e, err := New(Config{State: st, Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return root, e, st
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func mkdir(t *testing.T, root, rel string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(rel)), 0755); err != nil {
		t.Fatal(err)
	}
}

func addRule(t *testing.T, root, name, markdown string) *rules.UniversalRule {
	t.Helper()
	r := rules.NewRule(name, markdown)
	if err := rules.NewStore(nil).Save(filepath.Join(root, rules.DefaultDir), r); err != nil {
		t.Fatalf("save rule: %v", err)
	}
	return r
}

func run(t *testing.T, e *Engine, root string, opts Options) *SyncResult {
	t.Helper()
	res, err := e.Run(context.Background(), root, opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return res
}

func toolAction(t *testing.T, res *SyncResult, id registry.ToolID) ToolResult {
	t.Helper()
	tr, ok := res.Tool(id)
	if !ok {
		t.Fatalf("no result for %s in %+v", id, res.Tools)
	}
	return tr
}

func TestRun_CursorRulesCreation(t *testing.T) {
	root, e, _ := setupProject(t)
	mkdir(t, root, ".cursor")

	r := rules.NewRule("Use Parameterized Queries", "Never build SQL with string concatenation.")
	r.Content.Priority = rules.PriorityHigh
	r.Content.Tags = []string{"security"}
	if err := rules.NewStore(nil).Save(filepath.Join(root, rules.DefaultDir), r); err != nil {
		t.Fatal(err)
	}

	res := run(t, e, root, FullSync())

	cursor := toolAction(t, res, registry.ToolCursor)
	if cursor.Action != ActionWritten {
		t.Fatalf("cursor action = %s (%s)", cursor.Action, cursor.Error)
	}
	if got := readFile(t, root, ".cursorrules"); !strings.Contains(got, "Never build SQL with string concatenation.") {
		t.Errorf(".cursorrules missing rule content:\n%s", got)
	}
	if res.Written != 1 || res.Errors != 0 {
		t.Errorf("counts written=%d errors=%d", res.Written, res.Errors)
	}
}

func TestRun_Idempotent(t *testing.T) {
	root, e, _ := setupProject(t)
	writeFile(t, root, "CLAUDE.md", "# Project memory\n\nUse pnpm.\n")
	writeFile(t, root, ".cursorrules", "")
	mkdir(t, root, ".cursor/rules")
	mkdir(t, root, ".continue/rules")
	writeFile(t, root, ".aider.conf.yml", "model: sonnet\n")
	addRule(t, root, "Error Wrapping", "Wrap errors with %w.")
	addRule(t, root, "Small Functions", "Keep functions short.")

	first := run(t, e, root, FullSync())
	if first.Errors != 0 || !first.Changed() {
		t.Fatalf("first pass: %+v", first.Tools)
	}
	snapshot := map[string]string{}
	for _, rel := range []string{"CLAUDE.md", ".cursorrules", ".cursor/rules/error-wrapping.mdc", ".continue/rules/small-functions.md", ".aider.conf.yml", "CONVENTIONS.md"} {
		snapshot[rel] = readFile(t, root, rel)
	}

	second := run(t, e, root, FullSync())
	for _, tr := range second.Tools {
		if tr.Action != ActionSkipped {
			t.Errorf("second pass %s action = %s, want skipped", tr.Tool, tr.Action)
		}
	}
	for rel, before := range snapshot {
		if after := readFile(t, root, rel); after != before {
			t.Errorf("%s changed on second pass", rel)
		}
	}
}

func TestRun_MergePreservesUserContent(t *testing.T) {
	root, e, _ := setupProject(t)
	original := "# Project memory\n\nUse pnpm, never npm.\n"
	writeFile(t, root, "CLAUDE.md", original)
	r := addRule(t, root, "Error Wrapping", "Wrap errors with %w.")

	res := run(t, e, root, FullSync())
	if a := toolAction(t, res, registry.ToolClaude).Action; a != ActionMerged {
		t.Fatalf("claude action = %s", a)
	}
	got := readFile(t, root, "CLAUDE.md")
	if !strings.HasPrefix(got, compiler.BeginMarker) || !strings.HasSuffix(got, compiler.EndMarker+"\n\n"+original) {
		t.Fatalf("unexpected layout:\n%s", got)
	}

	// The user appends content; the canonical rule changes.
	withNotes := got + "\n## Local notes\nDo not touch.\n"
	writeFile(t, root, "CLAUDE.md", withNotes)
	r.Content.Markdown = "Always wrap errors with %w."
	if err := rules.NewStore(nil).Save(filepath.Join(root, rules.DefaultDir), r); err != nil {
		t.Fatal(err)
	}

	run(t, e, root, Incremental(false))
	got = readFile(t, root, "CLAUDE.md")
	if !strings.Contains(got, "Always wrap errors with %w.") {
		t.Error("generated region not refreshed")
	}
	after := got[strings.Index(got, compiler.EndMarker):]
	if after != withNotes[strings.Index(withNotes, compiler.EndMarker):] {
		t.Errorf("content outside the region changed:\n%q", after)
	}
}

func TestRun_NoResurrectOnIncremental(t *testing.T) {
	root, e, _ := setupProject(t)
	mkdir(t, root, ".cursor/rules")
	addRule(t, root, "Alpha", "alpha body")

	run(t, e, root, FullSync())
	if err := os.Remove(filepath.Join(root, ".cursorrules")); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(root, ".cursor/rules/alpha.mdc")); err != nil {
		t.Fatal(err)
	}

	addRule(t, root, "Beta", "beta body")
	res := run(t, e, root, Incremental(false))

	if _, err := os.Stat(filepath.Join(root, ".cursorrules")); !os.IsNotExist(err) {
		t.Error(".cursorrules was recreated by an incremental pass")
	}
	if _, err := os.Stat(filepath.Join(root, ".cursor/rules/alpha.mdc")); !os.IsNotExist(err) {
		t.Error("removed alpha.mdc was recreated by an incremental pass")
	}
	if _, err := os.Stat(filepath.Join(root, ".cursor/rules/beta.mdc")); err != nil {
		t.Errorf("new rule file not created: %v", err)
	}

	var sawMissing bool
	for _, a := range toolAction(t, res, registry.ToolCursor).Artifacts {
		if a.Path == ".cursorrules" && a.Action == ArtifactMissing {
			sawMissing = true
		}
	}
	if !sawMissing {
		t.Errorf("artifacts = %+v", toolAction(t, res, registry.ToolCursor).Artifacts)
	}

	// An explicit full sync restores everything.
	run(t, e, root, FullSync())
	for _, rel := range []string{".cursorrules", ".cursor/rules/alpha.mdc"} {
		if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
			t.Errorf("full sync did not restore %s: %v", rel, err)
		}
	}
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	root, e, _ := setupProject(t)
	mkdir(t, root, ".claude")
	mkdir(t, root, "CLAUDE.md") // a directory where a file must go
	writeFile(t, root, ".windsurfrules", "")
	addRule(t, root, "Alpha", "alpha body")

	res := run(t, e, root, FullSync())

	claude := toolAction(t, res, registry.ToolClaude)
	if claude.Action != ActionError || claude.Error == "" {
		t.Errorf("claude = %+v, want error", claude)
	}
	if !IsArtifactError(claude.Err()) {
		t.Errorf("claude.Err() = %v, want ArtifactError", claude.Err())
	}
	if a := toolAction(t, res, registry.ToolWindsurf).Action; a != ActionWritten {
		t.Errorf("windsurf action = %s, want written", a)
	}
	if res.Errors != 1 || res.Written != 1 {
		t.Errorf("counts errors=%d written=%d", res.Errors, res.Written)
	}
}

func TestRun_MalformedRegionLeftUntouched(t *testing.T) {
	root, e, _ := setupProject(t)
	broken := "notes\n" + compiler.BeginMarker + "\nhalf a region\n"
	writeFile(t, root, "AGENTS.md", broken)
	writeFile(t, root, ".clinerules", "")
	addRule(t, root, "Alpha", "alpha body")

	res := run(t, e, root, FullSync())

	codex := toolAction(t, res, registry.ToolCodex)
	if codex.Action != ActionError || !errors.Is(codex.Err(), compiler.ErrMalformedRegion) {
		t.Errorf("codex = %+v", codex)
	}
	if got := readFile(t, root, "AGENTS.md"); got != broken {
		t.Errorf("AGENTS.md modified:\n%s", got)
	}
	if a := toolAction(t, res, registry.ToolCline).Action; a != ActionWritten {
		t.Errorf("cline action = %s", a)
	}
}

func TestRun_UnreadableRulesDirIsFatal(t *testing.T) {
	root, e, st := setupProject(t)
	writeFile(t, root, "CLAUDE.md", "keep me\n")
	writeFile(t, root, ".agentsync/rules", "not a directory")

	res, err := e.Run(context.Background(), root, FullSync())
	if err == nil || !IsFatal(err) {
		t.Fatalf("Run() error = %v, want fatal rules directory error", err)
	}
	if res == nil || res.Error == "" {
		t.Errorf("result = %+v, want Error set", res)
	}
	if got := readFile(t, root, "CLAUDE.md"); got != "keep me\n" {
		t.Error("artifact written despite fatal error")
	}
	passes, _ := st.RecentPasses(context.Background(), res.Root, 10)
	if len(passes) != 1 || passes[0].Error == "" {
		t.Errorf("failed pass not recorded: %+v", passes)
	}
}

func TestRun_EmptyRuleSetSkipsEverything(t *testing.T) {
	root, e, _ := setupProject(t)
	writeFile(t, root, ".cursorrules", "hand written\n")
	writeFile(t, root, "CLAUDE.md", "memory\n")

	res := run(t, e, root, FullSync())
	for _, tr := range res.Tools {
		if tr.Action != ActionSkipped || tr.Detail != "no canonical rules" {
			t.Errorf("%s = %s (%s)", tr.Tool, tr.Action, tr.Detail)
		}
	}
	if got := readFile(t, root, ".cursorrules"); got != "hand written\n" {
		t.Error(".cursorrules wiped by an empty rule set")
	}
}

func TestRun_SkippedRuleFilesReported(t *testing.T) {
	root, e, _ := setupProject(t)
	writeFile(t, root, ".rules", "")
	addRule(t, root, "Alpha", "alpha body")
	writeFile(t, root, ".agentsync/rules/broken.json", "{")

	res := run(t, e, root, FullSync())
	if len(res.SkippedRuleFiles) != 1 || res.Rules != 1 {
		t.Errorf("SkippedRuleFiles = %v, Rules = %d", res.SkippedRuleFiles, res.Rules)
	}
	if a := toolAction(t, res, registry.ToolZed).Action; a != ActionWritten {
		t.Errorf("zed action = %s", a)
	}
}

func TestRun_FoldBackSectionEdit(t *testing.T) {
	root, e, _ := setupProject(t)
	writeFile(t, root, "CLAUDE.md", "# Notes\n")
	r := addRule(t, root, "Error Wrapping", "Wrap errors with %w.")
	run(t, e, root, FullSync())

	edited := strings.Replace(readFile(t, root, "CLAUDE.md"), "Wrap errors with %w.", "Wrap errors with %w and add context.", 1)
	writeFile(t, root, "CLAUDE.md", edited)

	opts := FullSync()
	opts.AutoSync = true
	res := run(t, e, root, opts)

	if len(res.Folded) != 1 || res.Folded[0].RuleID != r.ID || res.Folded[0].Created {
		t.Fatalf("Folded = %+v", res.Folded)
	}
	got, err := rules.NewStore(nil).Get(filepath.Join(root, rules.DefaultDir), r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content.Markdown != "Wrap errors with %w and add context." {
		t.Errorf("Markdown = %q", got.Content.Markdown)
	}
	if got.Version != "1.0.1" || !got.Metadata.ReviewRequired {
		t.Errorf("Version = %s, ReviewRequired = %v", got.Version, got.Metadata.ReviewRequired)
	}
	if readFile(t, root, "CLAUDE.md") != edited {
		t.Error("CLAUDE.md should already match the folded rule")
	}

	again := run(t, e, root, opts)
	if len(again.Folded) != 0 {
		t.Errorf("second pass folded again: %+v", again.Folded)
	}
}

func TestRun_EditDiscardedWithoutAutoSync(t *testing.T) {
	root, e, _ := setupProject(t)
	writeFile(t, root, "GEMINI.md", "")
	r := addRule(t, root, "Alpha", "alpha body")
	run(t, e, root, FullSync())

	writeFile(t, root, "GEMINI.md", strings.Replace(readFile(t, root, "GEMINI.md"), "alpha body", "edited", 1))
	res := run(t, e, root, FullSync())

	if len(res.Folded) != 0 {
		t.Errorf("Folded = %+v without auto-sync", res.Folded)
	}
	if !strings.Contains(readFile(t, root, "GEMINI.md"), "alpha body") {
		t.Error("canonical content should win inside the region")
	}
	got, _ := rules.NewStore(nil).Get(filepath.Join(root, rules.DefaultDir), r.ID)
	if got.Content.Markdown != "alpha body" {
		t.Error("canonical rule changed without auto-sync")
	}
}

func TestRun_FoldBackImportsHandWrittenFile(t *testing.T) {
	root, e, _ := setupProject(t)
	writeFile(t, root, ".cursorrules", "Prefer composition over inheritance.\n")

	opts := FullSync()
	opts.AutoSync = true
	res := run(t, e, root, opts)

	if len(res.Folded) != 1 || !res.Folded[0].Created {
		t.Fatalf("Folded = %+v", res.Folded)
	}
	imported, err := rules.NewStore(nil).FindByName(filepath.Join(root, rules.DefaultDir), "Cursor imported rules")
	if err != nil {
		t.Fatalf("imported rule not saved: %v", err)
	}
	if imported.Content.Markdown != "Prefer composition over inheritance." ||
		imported.Metadata.Confidence != importedConfidence || !imported.Metadata.ReviewRequired {
		t.Errorf("imported rule = %+v", imported)
	}
	if got := readFile(t, root, ".cursorrules"); !strings.Contains(got, compiler.BeginMarker) ||
		!strings.Contains(got, "Prefer composition over inheritance.") {
		t.Errorf(".cursorrules = %q", got)
	}

	again := run(t, e, root, opts)
	if len(again.Folded) != 0 {
		t.Errorf("import repeated: %+v", again.Folded)
	}
	if a := toolAction(t, again, registry.ToolCursor).Action; a != ActionSkipped {
		t.Errorf("cursor action on second pass = %s", a)
	}
}

func TestRun_DryRun(t *testing.T) {
	root, e, st := setupProject(t)
	mkdir(t, root, ".cursor")
	addRule(t, root, "Alpha", "alpha body")

	opts := FullSync()
	opts.DryRun = true
	res := run(t, e, root, opts)

	if a := toolAction(t, res, registry.ToolCursor).Action; a != ActionWritten {
		t.Errorf("dry-run cursor action = %s, want written", a)
	}
	if _, err := os.Stat(filepath.Join(root, ".cursorrules")); !os.IsNotExist(err) {
		t.Error("dry run wrote .cursorrules")
	}
	if passes, _ := st.RecentPasses(context.Background(), res.Root, 10); len(passes) != 0 {
		t.Error("dry run recorded history")
	}
	if recs, _ := st.Artifacts(context.Background(), res.Root); len(recs) != 0 {
		t.Error("dry run recorded artifact digests")
	}
}

func TestRun_ToolFilter(t *testing.T) {
	root, e, _ := setupProject(t)
	writeFile(t, root, ".cursorrules", "")
	writeFile(t, root, ".clinerules", "")
	addRule(t, root, "Alpha", "alpha body")

	opts := FullSync()
	opts.Tools = []registry.ToolID{registry.ToolCline}
	res := run(t, e, root, opts)
	if len(res.Tools) != 1 || res.Tools[0].Tool != registry.ToolCline {
		t.Errorf("Tools = %+v", res.Tools)
	}

	opts.Tools = []registry.ToolID{"nope"}
	if _, err := e.Run(context.Background(), root, opts); !errors.Is(err, registry.ErrUnknownTool) {
		t.Errorf("Run() error = %v, want ErrUnknownTool", err)
	}
}

func TestRun_PrunesRemovedRuleFiles(t *testing.T) {
	root, e, _ := setupProject(t)
	mkdir(t, root, ".amazonq/rules")
	addRule(t, root, "Alpha", "alpha body")
	beta := addRule(t, root, "Beta", "beta body")
	gamma := addRule(t, root, "Gamma", "gamma body")
	run(t, e, root, FullSync())

	// The user edits gamma's generated file; it must survive removal of the rule.
	writeFile(t, root, ".amazonq/rules/gamma.md", "my own notes\n")
	writeFile(t, root, ".amazonq/rules/handmade.md", "hand made\n")

	store := rules.NewStore(nil)
	dir := filepath.Join(root, rules.DefaultDir)
	for _, id := range []string{beta.ID, gamma.ID} {
		if _, err := store.Delete(dir, id); err != nil {
			t.Fatal(err)
		}
	}

	res := run(t, e, root, Incremental(false))

	if _, err := os.Stat(filepath.Join(root, ".amazonq/rules/beta.md")); !os.IsNotExist(err) {
		t.Error("beta.md not pruned")
	}
	for _, rel := range []string{".amazonq/rules/gamma.md", ".amazonq/rules/handmade.md", ".amazonq/rules/alpha.md"} {
		if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
			t.Errorf("%s should remain: %v", rel, err)
		}
	}
	if a := toolAction(t, res, registry.ToolAmazonQ).Action; a != ActionWritten {
		t.Errorf("amazonq action = %s", a)
	}
}

func TestRun_AiderConfigMerged(t *testing.T) {
	root, e, _ := setupProject(t)
	writeFile(t, root, ".aider.conf.yml", "# aider\nmodel: sonnet\n")
	addRule(t, root, "Alpha", "alpha body")

	res := run(t, e, root, FullSync())
	if a := toolAction(t, res, registry.ToolAider).Action; a != ActionMerged {
		t.Fatalf("aider action = %s (%s)", a, toolAction(t, res, registry.ToolAider).Error)
	}
	conf := readFile(t, root, ".aider.conf.yml")
	if !strings.Contains(conf, "model: sonnet") || !strings.Contains(conf, "CONVENTIONS.md") {
		t.Errorf(".aider.conf.yml = %q", conf)
	}
	if !strings.Contains(readFile(t, root, "CONVENTIONS.md"), "alpha body") {
		t.Error("CONVENTIONS.md not created")
	}
}

func TestRun_HistoryRecorded(t *testing.T) {
	root, e, st := setupProject(t)
	writeFile(t, root, ".windsurfrules", "")
	addRule(t, root, "Alpha", "alpha body")

	first := run(t, e, root, FullSync())
	run(t, e, root, Incremental(false))

	passes, err := st.RecentPasses(context.Background(), first.Root, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(passes) != 2 {
		t.Fatalf("recorded %d passes, want 2", len(passes))
	}
	if passes[0].Trigger != TriggerWatch || passes[1].Trigger != TriggerManual {
		t.Errorf("triggers = %s, %s", passes[0].Trigger, passes[1].Trigger)
	}
	if passes[1].Written != 1 || len(passes[1].Tools) != 1 || passes[1].Tools[0].Tool != "windsurf" {
		t.Errorf("first pass record = %+v", passes[1])
	}
}

func TestRun_ConcurrentPassesSerialized(t *testing.T) {
	root, e, _ := setupProject(t)
	writeFile(t, root, "CLAUDE.md", "notes\n")
	addRule(t, root, "Alpha", "alpha body")

	var wg sync.WaitGroup
	results := make([]*SyncResult, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.Run(context.Background(), root, FullSync())
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	merged := 0
	for _, r := range results {
		merged += r.Merged
	}
	if merged != 1 {
		t.Errorf("CLAUDE.md merged %d times, want exactly once", merged)
	}
	if got := readFile(t, root, "CLAUDE.md"); strings.Count(got, compiler.BeginMarker) != 1 {
		t.Errorf("CLAUDE.md corrupted:\n%s", got)
	}
}

func TestRun_CancelledContextSkipsTools(t *testing.T) {
	root, e, _ := setupProject(t)
	writeFile(t, root, ".clinerules", "")
	addRule(t, root, "Alpha", "alpha body")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Run(ctx, root, FullSync())
	if err != nil {
		t.Fatal(err)
	}
	if tr := toolAction(t, res, registry.ToolCline); tr.Action != ActionSkipped || tr.Detail != "pass cancelled" {
		t.Errorf("cline = %+v", tr)
	}
}

func TestRun_MarkerLinesInRuleBody(t *testing.T) {
	root, e, _ := setupProject(t)
	writeFile(t, root, "CLAUDE.md", "# Mine\n")
	mkdir(t, root, ".cursor")
	body := "Wrap generated text in\n" + compiler.EndMarker + "\nlines."
	r := addRule(t, root, "Markers", body)

	for pass := 1; pass <= 2; pass++ {
		res := run(t, e, root, FullSync())
		if res.Errors != 0 {
			t.Fatalf("pass %d: %+v", pass, res.Tools)
		}
	}
	res := run(t, e, root, FullSync())
	claude := toolAction(t, res, registry.ToolClaude)
	if claude.Action != ActionSkipped {
		t.Errorf("claude action on third pass = %s, want skipped", claude.Action)
	}
	if len(claude.Warnings) == 0 {
		t.Error("expected a warning about escaped marker lines")
	}
	for _, rel := range []string{"CLAUDE.md", ".cursorrules"} {
		if got := readFile(t, root, rel); !strings.Contains(got, `\`+compiler.EndMarker) {
			t.Errorf("%s does not hold the escaped line:\n%s", rel, got)
		}
	}

	// A fresh state store sees every artifact for the first time; the
	// escaped body must read back as the canonical body.
	fresh, err := New(Config{State: state.NewMemory(), Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatal(err)
	}
	opts := FullSync()
	opts.AutoSync = true
	again := run(t, fresh, root, opts)
	if len(again.Folded) != 0 {
		t.Errorf("Folded = %+v, want none", again.Folded)
	}
	got, err := rules.NewStore(nil).Get(filepath.Join(root, rules.DefaultDir), r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content.Markdown != body || got.Version != "1.0.0" {
		t.Errorf("rule changed: version %s markdown %q", got.Version, got.Content.Markdown)
	}
}

func TestRun_CRLFRuleBodyNotFoldedBack(t *testing.T) {
	root, e, _ := setupProject(t)
	writeFile(t, root, "CLAUDE.md", "")
	r := addRule(t, root, "Windows Rule", "Line one.\r\nLine two.\r\n")

	run(t, e, root, FullSync())

	fresh, err := New(Config{State: state.NewMemory(), Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatal(err)
	}
	opts := FullSync()
	opts.AutoSync = true
	res := run(t, fresh, root, opts)
	if len(res.Folded) != 0 {
		t.Errorf("Folded = %+v, want none", res.Folded)
	}
	got, err := rules.NewStore(nil).Get(filepath.Join(root, rules.DefaultDir), r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != "1.0.0" || got.Metadata.ReviewRequired {
		t.Errorf("rule bumped to %s (reviewRequired %v)", got.Version, got.Metadata.ReviewRequired)
	}
}

func TestRun_ImportDoesNotExtendUnrelatedRule(t *testing.T) {
	root, e, _ := setupProject(t)
	writeFile(t, root, "CLAUDE.md", "")
	writeFile(t, root, ".cursor/rules/security.mdc", "Use my own cursor guidance.\n")

	security := rules.NewRule("Security", "Never log secrets.")
	security.Compatibility.Tools = []string{string(registry.ToolClaude)}
	dir := filepath.Join(root, rules.DefaultDir)
	if err := rules.NewStore(nil).Save(dir, security); err != nil {
		t.Fatal(err)
	}

	opts := FullSync()
	opts.AutoSync = true
	res := run(t, e, root, opts)

	got, err := rules.NewStore(nil).Get(dir, security.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content.Markdown != "Never log secrets." || got.Version != "1.0.0" {
		t.Errorf("manual rule was modified: %q (version %s)", got.Content.Markdown, got.Version)
	}

	imported, err := rules.NewStore(nil).FindByName(dir, "security (cursor)")
	if err != nil {
		t.Fatalf("imported rule not saved under a qualified name: %v (folded %+v)", err, res.Folded)
	}
	if imported.Content.Markdown != "Use my own cursor guidance." || !imported.HasTag(ImportedTag) {
		t.Errorf("imported rule = %+v", imported)
	}

	// The imported rule targets every tool, but the Security section itself
	// must still hold only its own text.
	claude := readFile(t, root, "CLAUDE.md")
	at := strings.Index(claude, "<!-- rule:"+security.ID+" -->")
	if at < 0 {
		t.Fatalf("Security section missing from CLAUDE.md:\n%s", claude)
	}
	section := claude[at:]
	if end := strings.Index(section, "\n## "); end >= 0 {
		section = section[:end]
	}
	if strings.Contains(section, "cursor guidance") {
		t.Errorf("Security section in CLAUDE.md picked up cursor text:\n%s", section)
	}
}
