// Package memory implements the storage interface using in-memory data
// structures. It backs tests and one-shot runs where persistence is not
// wanted.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/EngSayh/backsync/internal/storage"
	"github.com/EngSayh/backsync/internal/types"
)

// MemoryStore implements storage.Store with mutex-guarded maps.
type MemoryStore struct {
	mu sync.RWMutex

	issues  map[string]*types.Issue
	batches []*types.Batch
}

var _ storage.Store = (*MemoryStore)(nil)

// New creates an empty in-memory store.
func New() *MemoryStore {
	return &MemoryStore{
		issues: make(map[string]*types.Issue),
	}
}

func (m *MemoryStore) GetIssue(_ context.Context, key string) (*types.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	is, ok := m.issues[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyIssue(is), nil
}

func (m *MemoryStore) UpsertIssue(_ context.Context, issue *types.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.issues[issue.Key] = copyIssue(issue)
	return nil
}

func (m *MemoryStore) ListIssues(_ context.Context, filter storage.Filter) ([]*types.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Issue, 0, len(m.issues))
	for _, is := range m.issues {
		if filter.Matches(is) {
			out = append(out, copyIssue(is))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) SaveBatch(_ context.Context, batch *types.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := *batch
	m.batches = append(m.batches, &b)
	return nil
}

func (m *MemoryStore) ListBatches(_ context.Context, limit int) ([]*types.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Batch, 0, len(m.batches))
	for i := len(m.batches) - 1; i >= 0; i-- {
		b := *m.batches[i]
		out = append(out, &b)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// copyIssue returns a deep copy so callers cannot alias internal state.
func copyIssue(is *types.Issue) *types.Issue {
	out := *is
	if is.Location.Lines != nil {
		lines := *is.Location.Lines
		out.Location.Lines = &lines
	}
	if len(is.StatusHistory) > 0 {
		out.StatusHistory = make([]types.StatusChange, len(is.StatusHistory))
		copy(out.StatusHistory, is.StatusHistory)
	}
	return &out
}
