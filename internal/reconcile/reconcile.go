// Package reconcile syncs resolved issues into the canonical store and
// reports what changed, as created/updated/skipped counts per run.
//
// A run always produces a Result, even on partial failure: per-key store
// errors accumulate instead of aborting, so "nothing changed" and "the
// sync itself failed" stay distinguishable. Issues are never deleted;
// removal is a status change upstream.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EngSayh/backsync/internal/resolve"
	"github.com/EngSayh/backsync/internal/storage"
	"github.com/EngSayh/backsync/internal/types"
)

// KeyError records a per-key failure within an otherwise surviving run.
type KeyError struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

func (e KeyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Reason)
}

// Result is the outcome of one reconciliation run.
type Result struct {
	SessionID string             `json:"session_id"`
	Created   int                `json:"created"`
	Updated   int                `json:"updated"`
	Skipped   int                `json:"skipped"`
	Errors    []KeyError         `json:"errors,omitempty"`
	Conflicts []resolve.Conflict `json:"conflicts,omitempty"`
}

// Degraded reports whether any key failed. A degraded run must never be
// surfaced as a clean success.
func (r *Result) Degraded() bool {
	return len(r.Errors) > 0
}

// Options carries run metadata into the batch record.
type Options struct {
	SessionID string
	Source    string
	RanAt     time.Time
}

// Reconcile upserts the run's resolved issues into the store and saves a
// batch record. Per-key store failures land in Result.Errors and do not
// abort the rest; counts for successfully processed keys stand. Returns a
// non-nil Result alongside any error.
func Reconcile(ctx context.Context, store storage.Store, issues []types.Issue, conflicts []resolve.Conflict, opts Options) (*Result, error) {
	if opts.RanAt.IsZero() {
		opts.RanAt = time.Now().UTC()
	}
	result := &Result{
		SessionID: opts.SessionID,
		Conflicts: conflicts,
	}
	categoryCounts := make(map[string]int)
	priorityCounts := make(map[string]int)

	for i := range issues {
		if err := ctx.Err(); err != nil {
			// Coarse cancellation between keys; committed progress stands.
			return result, err
		}
		is := &issues[i]

		if err := is.Validate(); err != nil {
			result.Errors = append(result.Errors, KeyError{Key: is.Key, Reason: err.Error()})
			continue
		}
		if is.ContentHash == "" {
			is.ContentHash = is.ComputeContentHash()
		}

		prior, err := store.GetIssue(ctx, is.Key)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			prior = nil
		case err != nil:
			result.Errors = append(result.Errors, KeyError{Key: is.Key, Reason: err.Error()})
			continue
		}

		if err := store.UpsertIssue(ctx, is); err != nil {
			result.Errors = append(result.Errors, KeyError{Key: is.Key, Reason: err.Error()})
			continue
		}

		if prior != nil && prior.ContentHash == "" {
			prior.ContentHash = prior.ComputeContentHash()
		}
		switch {
		case prior == nil:
			result.Created++
		case prior.ContentHash == is.ContentHash:
			result.Skipped++
		default:
			result.Updated++
		}
		categoryCounts[string(is.Category)]++
		priorityCounts[string(is.Priority)]++
	}

	batch := &types.Batch{
		SessionID:      opts.SessionID,
		RanAt:          opts.RanAt,
		Source:         opts.Source,
		Created:        result.Created,
		Updated:        result.Updated,
		Skipped:        result.Skipped,
		Errors:         len(result.Errors),
		CategoryCounts: categoryCounts,
		PriorityCounts: priorityCounts,
	}
	if err := store.SaveBatch(ctx, batch); err != nil {
		return result, fmt.Errorf("failed to save batch record: %w", err)
	}
	return result, nil
}
