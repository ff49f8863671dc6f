package engine

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentsync/agentsync/internal/compiler"
	"github.com/agentsync/agentsync/internal/detect"
	"github.com/agentsync/agentsync/internal/fsutil"
	"github.com/agentsync/agentsync/internal/rules"
	"github.com/agentsync/agentsync/internal/state"
)

// importedConfidence is the confidence assigned to rules created from
// unattributed artifact text.
const importedConfidence = 0.5

// ImportedTag marks rules created from unattributed artifact text. Later
// imports of the same name extend only rules carrying it.
const ImportedTag = "imported"

// foldBack imports artifact edits made outside agentsync into the canonical
// rules and returns the updated rule set. Only artifacts whose content differs
// from the last recorded digest are parsed. Failures are logged and never
// abort the pass.
func (e *Engine) foldBack(ctx context.Context, root, rulesDir string, tools []detect.DetectedTool, current []*rules.UniversalRule, opts Options, result *SyncResult, log *zap.Logger) []*rules.UniversalRule {
	set := newRuleSet(current)

	for _, tool := range tools {
		c := e.compilers[tool.Tool]
		files, err := existingArtifactFiles(root, c.Tool())
		if err != nil {
			log.Warn("fold-back: cannot list artifacts", zap.String("tool", string(tool.Tool)), zap.Error(err))
		}
		for _, rel := range files {
			data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				log.Warn("fold-back: cannot read artifact", zap.String("path", rel), zap.Error(err))
				continue
			}
			digest := fsutil.Digest(data)
			rec, had, err := e.state.Artifact(ctx, root, rel)
			if err != nil {
				log.Warn("fold-back: state lookup failed", zap.String("path", rel), zap.Error(err))
				continue
			}
			if had && rec.Digest == digest {
				continue
			}
			if !had && strings.TrimSpace(string(data)) == "" {
				continue
			}

			frag, err := c.Parse(rel, data)
			if err != nil {
				log.Warn("fold-back: cannot parse artifact", zap.String("path", rel), zap.Error(err))
				continue
			}
			result.Folded = append(result.Folded, set.apply(c, frag, e.now)...)

			if opts.DryRun {
				continue
			}
			// Remember the observed content so it is not imported twice.
			obs := state.ArtifactRecord{
				Root: root, Path: rel, Tool: string(tool.Tool),
				Digest: digest, UpdatedAt: e.now(),
			}
			if had {
				obs.RuleID, obs.Generated = rec.RuleID, rec.Generated
			}
			if err := e.state.PutArtifact(ctx, obs); err != nil {
				log.Warn("fold-back: failed to record digest", zap.String("path", rel), zap.Error(err))
			}
		}
	}

	if len(set.dirty) == 0 {
		return current
	}

	for _, id := range set.order {
		if !set.dirty[id] {
			continue
		}
		r := set.byID[id]
		if opts.DryRun {
			continue
		}
		if err := e.store.Save(rulesDir, r); err != nil {
			log.Warn("fold-back: failed to save rule", zap.String("rule", r.Name), zap.Error(err))
			set.revert(id)
			result.Folded = dropFolded(result.Folded, id)
			continue
		}
		log.Info("folded artifact edits into rule", zap.String("rule", r.Name), zap.String("id", r.ID), zap.String("version", r.Version))
	}
	return set.rules()
}

func dropFolded(folded []FoldedRule, id string) []FoldedRule {
	out := folded[:0]
	for _, f := range folded {
		if f.RuleID != id {
			out = append(out, f)
		}
	}
	return out
}

// ruleSet is the mutable working copy of the canonical rules during fold-back.
type ruleSet struct {
	order    []string
	byID     map[string]*rules.UniversalRule
	original map[string]*rules.UniversalRule
	dirty    map[string]bool
}

func newRuleSet(current []*rules.UniversalRule) *ruleSet {
	s := &ruleSet{
		byID:     make(map[string]*rules.UniversalRule, len(current)),
		original: make(map[string]*rules.UniversalRule, len(current)),
		dirty:    make(map[string]bool),
	}
	for _, r := range current {
		s.order = append(s.order, r.ID)
		s.byID[r.ID] = r
		s.original[r.ID] = r
	}
	return s
}

func (s *ruleSet) rules() []*rules.UniversalRule {
	out := make([]*rules.UniversalRule, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// revert drops an unsaved change: an updated rule returns to its loaded
// version, a new rule disappears.
func (s *ruleSet) revert(id string) {
	delete(s.dirty, id)
	if orig, ok := s.original[id]; ok {
		s.byID[id] = orig
		return
	}
	delete(s.byID, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *ruleSet) put(r *rules.UniversalRule) {
	if _, ok := s.byID[r.ID]; !ok {
		s.order = append(s.order, r.ID)
	}
	s.byID[r.ID] = r
	s.dirty[r.ID] = true
}

func (s *ruleSet) bySlug(slug string) *rules.UniversalRule {
	for _, id := range s.order {
		if s.byID[id].Slug() == slug {
			return s.byID[id]
		}
	}
	return nil
}

// importTarget picks the rule imported text for base goes to. A rule of that
// name is reused only when it was itself imported; otherwise the name is
// qualified with the tool id (and a counter) until it is free.
func (s *ruleSet) importTarget(base, tool string) (string, *rules.UniversalRule) {
	name := base
	for n := 1; ; n++ {
		switch n {
		case 1:
		case 2:
			name = fmt.Sprintf("%s (%s)", base, tool)
		default:
			name = fmt.Sprintf("%s (%s %d)", base, tool, n-1)
		}
		existing := s.bySlug(rules.Slugify(name))
		if existing == nil {
			return name, nil
		}
		if existing.HasTag(ImportedTag) {
			return name, existing
		}
	}
}

// apply folds one parsed artifact into the set.
func (s *ruleSet) apply(c *compiler.Compiler, frag *compiler.RuleFragment, now func() time.Time) []FoldedRule {
	desc := c.Tool()
	tool := string(desc.ID)
	var folded []FoldedRule

	for _, sec := range frag.Sections {
		r, ok := s.byID[sec.RuleID]
		if !ok {
			// The rule was deleted from the store; the next write drops the section.
			continue
		}
		if sec.Body == compiler.NormalizeBody(r.MarkdownFor(tool)) {
			continue
		}
		updated := r.Clone()
		if o, ok := updated.Compatibility.Overrides[tool]; ok && o.Markdown != "" {
			o.Markdown = sec.Body
			updated.Compatibility.Overrides[tool] = o
		} else {
			updated.Content.Markdown = sec.Body
		}
		updated.Version = rules.BumpPatch(r.Version)
		updated.Metadata.ReviewRequired = true
		s.put(updated)
		folded = append(folded, FoldedRule{RuleID: updated.ID, Name: updated.Name, Tool: desc.ID, Path: frag.Path})
	}

	if frag.Import == "" {
		return folded
	}

	base := desc.DisplayName + " imported rules"
	if frag.Format.IsDir() {
		base = strings.TrimSuffix(path.Base(frag.Path), path.Ext(frag.Path))
	}
	name, existing := s.importTarget(base, tool)

	if existing != nil {
		if strings.Contains(existing.Content.Markdown, frag.Import) {
			return folded
		}
		updated := existing.Clone()
		updated.Content.Markdown = strings.TrimSpace(updated.Content.Markdown + "\n\n" + frag.Import)
		updated.Version = rules.BumpPatch(existing.Version)
		updated.Metadata.ReviewRequired = true
		s.put(updated)
		return append(folded, FoldedRule{RuleID: updated.ID, Name: updated.Name, Tool: desc.ID, Path: frag.Path})
	}

	r := rules.NewRule(name, frag.Import)
	r.Metadata.Created = now()
	r.Metadata.Updated = r.Metadata.Created
	r.Metadata.Source = rules.SourceManual
	r.Metadata.Confidence = importedConfidence
	r.Metadata.ReviewRequired = true
	r.Content.Tags = []string{ImportedTag}
	r.Description = fmt.Sprintf("Imported from %s", frag.Path)
	if d := frag.Metadata["description"]; d != "" {
		r.Description = d
	}
	if globs := frag.Metadata["globs"]; globs != "" && frag.Metadata["alwaysApply"] != "true" {
		r.Application.Mode = rules.ModeContext
		for _, g := range strings.Split(globs, ",") {
			if g = strings.TrimSpace(g); g != "" {
				r.Application.Include = append(r.Application.Include, g)
			}
		}
	}
	if err := r.Validate(); err != nil {
		return folded
	}
	s.put(r)
	return append(folded, FoldedRule{RuleID: r.ID, Name: r.Name, Tool: desc.ID, Path: frag.Path, Created: true})
}
