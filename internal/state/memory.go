package state

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a Store kept in process memory. It backs dry runs and tests.
type MemoryStore struct {
	mu        sync.Mutex
	artifacts map[string]map[string]ArtifactRecord // root -> path -> record
	passes    []PassRecord
	nextID    int64
	closed    bool
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{artifacts: make(map[string]map[string]ArtifactRecord)}
}

func (m *MemoryStore) Artifact(_ context.Context, root, path string) (ArtifactRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ArtifactRecord{}, false, ErrClosed
	}
	rec, ok := m.artifacts[root][path]
	return rec, ok, nil
}

func (m *MemoryStore) Artifacts(_ context.Context, root string) ([]ArtifactRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]ArtifactRecord, 0, len(m.artifacts[root]))
	for _, rec := range m.artifacts[root] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *MemoryStore) PutArtifact(_ context.Context, rec ArtifactRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	if m.artifacts[rec.Root] == nil {
		m.artifacts[rec.Root] = make(map[string]ArtifactRecord)
	}
	m.artifacts[rec.Root][rec.Path] = rec
	return nil
}

func (m *MemoryStore) DeleteArtifact(_ context.Context, root, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.artifacts[root], path)
	return nil
}

func (m *MemoryStore) RecordPass(_ context.Context, rec *PassRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.nextID++
	rec.ID = m.nextID
	stored := *rec
	stored.Tools = append([]ToolOutcome(nil), rec.Tools...)
	m.passes = append(m.passes, stored)

	// Trim history beyond HistoryLimit for this root.
	count := 0
	for _, p := range m.passes {
		if p.Root == rec.Root {
			count++
		}
	}
	if excess := count - HistoryLimit; excess > 0 {
		kept := make([]PassRecord, 0, len(m.passes)-excess)
		for _, p := range m.passes {
			if p.Root == rec.Root && excess > 0 {
				excess--
				continue
			}
			kept = append(kept, p)
		}
		m.passes = kept
	}
	return nil
}

func (m *MemoryStore) RecentPasses(_ context.Context, root string, limit int) ([]PassRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = HistoryLimit
	}
	var out []PassRecord
	for i := len(m.passes) - 1; i >= 0 && len(out) < limit; i-- {
		if m.passes[i].Root == root {
			p := m.passes[i]
			p.Tools = append([]ToolOutcome(nil), p.Tools...)
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
