package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentsync/agentsync/internal/fsutil"
)

// FileExt is the extension of canonical rule files.
const FileExt = ".json"

// DefaultDir is the project-relative rules directory.
const DefaultDir = ".agentsync/rules"

// LoadReport is the outcome of loading a rules directory.
type LoadReport struct {
	Rules   []*UniversalRule
	Skipped []*LoadError
}

// Store reads and writes canonical rules, one JSON document per rule.
// Save and Delete are serialized; reads are side-effect free.
type Store struct {
	logger *zap.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// NewStore creates a Store. A nil logger disables logging.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock replaces the clock used to stamp saved rules.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// ReadRuleFile reads, schema-checks and validates one rule file.
func ReadRuleFile(path string) (*UniversalRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file %s: %w", path, err)
	}
	return decodeRule(data)
}

func decodeRule(data []byte) (*UniversalRule, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}
	var rule UniversalRule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("failed to parse rule: %w", err)
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Load reads every *.json rule in rulesDir. Invalid files are reported in
// Skipped and logged; a missing directory is an empty store. Only an
// unreadable directory returns an error (*DirectoryError).
func (s *Store) Load(rulesDir string) (*LoadReport, error) {
	entries, err := os.ReadDir(rulesDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LoadReport{}, nil
		}
		return nil, &DirectoryError{Dir: rulesDir, Err: err}
	}

	report := &LoadReport{}
	seen := make(map[string]string) // id -> filename

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileExt) {
			continue
		}

		path := filepath.Join(rulesDir, entry.Name())
		rule, err := ReadRuleFile(path)
		if err != nil {
			s.skip(report, path, err)
			continue
		}
		if first, dup := seen[rule.ID]; dup {
			s.skip(report, path, fmt.Errorf("duplicate id %s (already loaded from %s)", rule.ID, first))
			continue
		}
		seen[rule.ID] = entry.Name()
		report.Rules = append(report.Rules, rule)
	}

	return report, nil
}

func (s *Store) skip(report *LoadReport, path string, err error) {
	loadErr := &LoadError{Path: path, Err: err}
	report.Skipped = append(report.Skipped, loadErr)
	s.logger.Warn("skipping invalid rule file", zap.String("path", path), zap.Error(err))
}

// LoadAll returns the valid rules in rulesDir, skipping invalid files.
func (s *Store) LoadAll(rulesDir string) ([]*UniversalRule, error) {
	report, err := s.Load(rulesDir)
	if err != nil {
		return nil, err
	}
	return report.Rules, nil
}

// Get returns the rule with the given id.
func (s *Store) Get(rulesDir, id string) (*UniversalRule, error) {
	all, err := s.LoadAll(rulesDir)
	if err != nil {
		return nil, err
	}
	for _, r := range all {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
}

// FindByName returns the rule whose slug matches name's slug.
func (s *Store) FindByName(rulesDir, name string) (*UniversalRule, error) {
	rule, err := ReadRuleFile(filepath.Join(rulesDir, Slugify(name)+FileExt))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, name)
		}
		return nil, err
	}
	return rule, nil
}

// Save validates rule, stamps its Updated time and writes it to
// rulesDir/{slug}.json as a whole-file replacement.
//
// A file at the target name that belongs to another id (or cannot be read
// back) is never overwritten: Save returns ErrNameCollision. When the rule was
// previously stored under another name, the old file is removed after the new
// one is in place.
func (s *Store) Save(rulesDir string, rule *UniversalRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if rule.Metadata.Created.IsZero() {
		rule.Metadata.Created = now
	}
	rule.Metadata.Updated = now
	if rule.Metadata.Updated.Before(rule.Metadata.Created) {
		rule.Metadata.Updated = rule.Metadata.Created
	}

	if err := rule.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid rule %q: %w", rule.Name, err)
	}

	data, err := json.MarshalIndent(rule, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rule %s: %w", rule.ID, err)
	}
	data = append(data, '\n')
	if err := ValidateDocument(data); err != nil {
		return fmt.Errorf("cannot save rule %q: %w", rule.Name, err)
	}

	path := filepath.Join(rulesDir, rule.Filename())
	if existing, ok, err := fsutil.ReadFileIfExists(path); err != nil {
		return fmt.Errorf("failed to inspect %s: %w", path, err)
	} else if ok {
		owner, err := ownerID(existing)
		if err != nil || owner != rule.ID {
			return fmt.Errorf("%w: %s", ErrNameCollision, rule.Filename())
		}
	}

	previous, err := s.filesForID(rulesDir, rule.ID)
	if err != nil {
		return err
	}

	if err := fsutil.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write rule file %s: %w", path, err)
	}

	for _, old := range previous {
		if old == rule.Filename() {
			continue
		}
		if err := os.Remove(filepath.Join(rulesDir, old)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove renamed rule file", zap.String("file", old), zap.Error(err))
		}
	}

	s.logger.Debug("saved rule", zap.String("id", rule.ID), zap.String("file", rule.Filename()))
	return nil
}

// Delete removes every file holding the rule with id. It reports whether
// anything was removed.
func (s *Store) Delete(rulesDir, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.filesForID(rulesDir, id)
	if err != nil {
		return false, err
	}
	for _, name := range files {
		if err := os.Remove(filepath.Join(rulesDir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("failed to delete rule file %s: %w", name, err)
		}
	}
	if len(files) > 0 {
		s.logger.Debug("deleted rule", zap.String("id", id), zap.Strings("files", files))
	}
	return len(files) > 0, nil
}

// filesForID lists the rule files whose id field equals id, sorted.
func (s *Store) filesForID(rulesDir, id string) ([]string, error) {
	entries, err := os.ReadDir(rulesDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &DirectoryError{Dir: rulesDir, Err: err}
	}

	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(rulesDir, entry.Name()))
		if err != nil {
			continue
		}
		if owner, err := ownerID(data); err == nil && owner == id {
			out = append(out, entry.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func ownerID(data []byte) (string, error) {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", err
	}
	if head.ID == "" {
		return "", fmt.Errorf("missing id")
	}
	return head.ID, nil
}

// Sort orders rules by priority (high first), then name, then id.
func Sort(rules []*UniversalRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Content.Priority.Rank() != b.Content.Priority.Rank() {
			return a.Content.Priority.Rank() < b.Content.Priority.Rank()
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}
