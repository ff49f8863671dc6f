package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/agentsync/agentsync/internal/compiler"
	"github.com/agentsync/agentsync/internal/detect"
	"github.com/agentsync/agentsync/internal/fsutil"
	"github.com/agentsync/agentsync/internal/registry"
	"github.com/agentsync/agentsync/internal/rules"
	"github.com/agentsync/agentsync/internal/state"
)

// syncTool compiles and writes every artifact of one tool. Failures stay
// inside the returned ToolResult.
func (e *Engine) syncTool(ctx context.Context, root string, tool detect.DetectedTool, current []*rules.UniversalRule, opts Options, log *zap.Logger) ToolResult {
	c := e.compilers[tool.Tool]
	desc := c.Tool()
	log = log.With(zap.String("tool", string(tool.Tool)))

	out := c.Compile(current)
	tr := ToolResult{
		Tool:       tool.Tool,
		Name:       desc.DisplayName,
		Confidence: tool.Confidence,
		Warnings:   out.Warnings,
	}
	for _, w := range out.Warnings {
		log.Debug("compile warning", zap.String("rule", w.RuleName), zap.String("warning", w.Message))
	}

	bySpec := make(map[string][]compiler.Artifact)
	for _, a := range out.Artifacts {
		bySpec[a.Spec] = append(bySpec[a.Spec], a)
	}

	var errs []error
	for _, spec := range desc.Artifacts {
		var results []ArtifactResult
		var err error
		if spec.Format.IsDir() {
			results, err = e.syncDir(ctx, root, c, spec, bySpec[spec.Path], opts)
		} else {
			var r ArtifactResult
			r, err = e.syncFile(ctx, root, c, spec, bySpec[spec.Path][0], opts)
			results = []ArtifactResult{r}
		}
		tr.Artifacts = append(tr.Artifacts, results...)
		if err != nil {
			errs = append(errs, err)
		}
	}

	changed := false
	for _, a := range tr.Artifacts {
		if a.Action.changed() {
			changed = true
		}
	}

	switch {
	case len(errs) > 0:
		tr.Action = ActionError
		tr.err = errors.Join(errs...)
		tr.Error = tr.err.Error()
		log.Warn("tool sync failed", zap.Error(tr.err))
	case changed && desc.Strategy == registry.StrategyMerge:
		tr.Action = ActionMerged
	case changed:
		tr.Action = ActionWritten
	default:
		tr.Action = ActionSkipped
		tr.Detail = skipDetail(tr.Artifacts)
	}
	return tr
}

func skipDetail(arts []ArtifactResult) string {
	for _, a := range arts {
		if a.Action == ArtifactUnchanged {
			return "up to date"
		}
	}
	return "artifacts missing"
}

// syncFile reconciles one single-file artifact.
func (e *Engine) syncFile(ctx context.Context, root string, c *compiler.Compiler, spec registry.ArtifactSpec, art compiler.Artifact, opts Options) (ArtifactResult, error) {
	desc := c.Tool()
	abs := filepath.Join(root, filepath.FromSlash(art.Path))
	res := ArtifactResult{Path: art.Path}

	existing, ok, err := fsutil.ReadFileIfExists(abs)
	if err != nil {
		return e.fail(res, desc.ID, err)
	}
	if !ok && !(opts.CreateMissing && spec.Required) {
		res.Action = ArtifactMissing
		return res, nil
	}

	content := art.Content
	if ok && desc.Strategy == registry.StrategyMerge {
		content, err = c.Merge(art, existing)
		if err != nil {
			return e.fail(res, desc.ID, err)
		}
	}

	switch {
	case !ok:
		res.Action = ArtifactCreated
	case bytes.Equal(content, existing):
		res.Action = ArtifactUnchanged
	default:
		res.Action = ArtifactUpdated
	}
	return e.commit(ctx, root, desc.ID, art, content, res, opts.DryRun)
}

// syncDir reconciles a directory artifact: one file per rule, plus pruning of
// generated files whose rule is gone.
func (e *Engine) syncDir(ctx context.Context, root string, c *compiler.Compiler, spec registry.ArtifactSpec, arts []compiler.Artifact, opts Options) ([]ArtifactResult, error) {
	desc := c.Tool()
	dirAbs := filepath.Join(root, filepath.FromSlash(spec.Path))

	info, err := os.Stat(dirAbs)
	dirExists := err == nil && info.IsDir()
	if !dirExists && !(opts.CreateMissing && spec.Required) {
		return []ArtifactResult{{Path: spec.Path, Action: ArtifactMissing}}, nil
	}

	var (
		results []ArtifactResult
		errs    []error
	)
	generated := make(map[string]bool, len(arts))
	for _, art := range arts {
		generated[art.Path] = true
		res := ArtifactResult{Path: art.Path}
		abs := filepath.Join(root, filepath.FromSlash(art.Path))

		existing, ok, err := fsutil.ReadFileIfExists(abs)
		if err != nil {
			r, err := e.fail(res, desc.ID, err)
			results, errs = append(results, r), append(errs, err)
			continue
		}
		if !ok && !opts.CreateMissing {
			// A file we wrote before and the user deleted stays deleted.
			if _, had, _ := e.state.Artifact(ctx, root, art.Path); had {
				res.Action = ArtifactMissing
				results = append(results, res)
				continue
			}
		}

		switch {
		case !ok:
			res.Action = ArtifactCreated
		case bytes.Equal(art.Content, existing):
			res.Action = ArtifactUnchanged
		default:
			res.Action = ArtifactUpdated
		}
		r, err := e.commit(ctx, root, desc.ID, art, art.Content, res, opts.DryRun)
		results = append(results, r)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if dirExists {
		pruned, err := e.prune(ctx, root, desc.ID, spec, generated, opts)
		results = append(results, pruned...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

// prune removes generated per-rule files that no longer correspond to a rule.
// A file is only removed when its content still matches what was written, so
// user edits are never lost.
func (e *Engine) prune(ctx context.Context, root string, tool registry.ToolID, spec registry.ArtifactSpec, keep map[string]bool, opts Options) ([]ArtifactResult, error) {
	files, err := listDirArtifact(root, spec)
	if err != nil {
		return nil, &ArtifactError{Tool: tool, Path: spec.Path, Err: err}
	}

	var (
		results []ArtifactResult
		errs    []error
	)
	for _, rel := range files {
		if keep[rel] {
			continue
		}
		rec, had, err := e.state.Artifact(ctx, root, rel)
		if err != nil || !had || !rec.Generated || rec.RuleID == "" {
			continue
		}
		abs := filepath.Join(root, filepath.FromSlash(rel))
		data, err := os.ReadFile(abs)
		if err != nil || fsutil.Digest(data) != rec.Digest {
			continue
		}
		res := ArtifactResult{Path: rel, Action: ArtifactPruned}
		if !opts.DryRun {
			if err := os.Remove(abs); err != nil {
				r, err := e.fail(res, tool, err)
				results, errs = append(results, r), append(errs, err)
				continue
			}
			if err := e.state.DeleteArtifact(ctx, root, rel); err != nil {
				e.logger.Warn("failed to forget pruned artifact", zap.String("path", rel), zap.Error(err))
			}
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// commit writes content (unless unchanged or dry run) and records its digest.
func (e *Engine) commit(ctx context.Context, root string, tool registry.ToolID, art compiler.Artifact, content []byte, res ArtifactResult, dryRun bool) (ArtifactResult, error) {
	if dryRun {
		return res, nil
	}
	if res.Action != ArtifactUnchanged {
		abs := filepath.Join(root, filepath.FromSlash(art.Path))
		if err := fsutil.WriteFileAtomic(abs, content, 0644); err != nil {
			return e.fail(res, tool, err)
		}
	}

	digest := fsutil.Digest(content)
	if rec, had, err := e.state.Artifact(ctx, root, art.Path); err == nil && had &&
		rec.Digest == digest && rec.Generated && rec.RuleID == art.RuleID {
		return res, nil
	}
	err := e.state.PutArtifact(ctx, state.ArtifactRecord{
		Root:      root,
		Path:      art.Path,
		Tool:      string(tool),
		RuleID:    art.RuleID,
		Digest:    digest,
		Generated: true,
		UpdatedAt: e.now(),
	})
	if err != nil {
		e.logger.Warn("failed to record artifact digest", zap.String("path", art.Path), zap.Error(err))
	}
	return res, nil
}

func (e *Engine) fail(res ArtifactResult, tool registry.ToolID, err error) (ArtifactResult, error) {
	ae := &ArtifactError{Tool: tool, Path: res.Path, Err: err}
	res.Action = ArtifactFailed
	res.Error = err.Error()
	return res, ae
}

// listDirArtifact returns the project-relative paths of the per-rule files in
// a directory artifact, sorted. A missing directory yields nothing.
func listDirArtifact(root string, spec registry.ArtifactSpec) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash(spec.Path)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), spec.Format.FileExt()) {
			continue
		}
		out = append(out, path.Join(spec.Path, entry.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// existingArtifactFiles lists every artifact file of desc present under root.
func existingArtifactFiles(root string, desc registry.ToolDescriptor) ([]string, error) {
	var out []string
	for _, spec := range desc.Artifacts {
		if spec.Format.IsDir() {
			files, err := listDirArtifact(root, spec)
			if err != nil {
				return out, fmt.Errorf("failed to list %s: %w", spec.Path, err)
			}
			out = append(out, files...)
			continue
		}
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(spec.Path)))
		if err == nil && !info.IsDir() {
			out = append(out, spec.Path)
		}
	}
	return out, nil
}
