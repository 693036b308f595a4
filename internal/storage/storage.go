// Package storage defines the interface for canonical issue stores.
//
// The store is the single source of truth the reconciler writes into; the
// markdown documents are derived views. Backends must support upsert-by-key
// with at-least-once semantics. Nothing in the engine ever deletes an
// issue; removal is a status change.
package storage

import (
	"context"
	"errors"

	"github.com/EngSayh/backsync/internal/types"
)

// ErrNotFound is returned when the requested issue key does not exist.
var ErrNotFound = errors.New("issue not found")

// Filter narrows ListIssues. Zero values match everything.
type Filter struct {
	Status   types.Status
	Category types.Category
	Priority types.Priority
	File     string
}

// Store is the canonical issue store.
type Store interface {
	// GetIssue returns the issue for key, or ErrNotFound.
	GetIssue(ctx context.Context, key string) (*types.Issue, error)

	// UpsertIssue creates or replaces the issue under its key.
	UpsertIssue(ctx context.Context, issue *types.Issue) error

	// ListIssues returns issues matching the filter, ordered by key.
	ListIssues(ctx context.Context, filter Filter) ([]*types.Issue, error)

	// SaveBatch records one reconciliation run.
	SaveBatch(ctx context.Context, batch *types.Batch) error

	// ListBatches returns the most recent batches, newest first. A limit
	// of 0 means all.
	ListBatches(ctx context.Context, limit int) ([]*types.Batch, error)

	Close() error
}

// Matches reports whether an issue passes the filter.
func (f Filter) Matches(is *types.Issue) bool {
	if f.Status != "" && is.Status != f.Status {
		return false
	}
	if f.Category != "" && is.Category != f.Category {
		return false
	}
	if f.Priority != "" && is.Priority != f.Priority {
		return false
	}
	if f.File != "" && is.Location.File != f.File {
		return false
	}
	return true
}
