package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/EngSayh/backsync/internal/resolve"
	"github.com/EngSayh/backsync/internal/storage"
	"github.com/EngSayh/backsync/internal/storage/memory"
	"github.com/EngSayh/backsync/internal/types"
)

var t0 = time.Date(2025, 5, 11, 10, 0, 0, 0, time.UTC)

func issue(key string, mut func(*types.Issue)) types.Issue {
	is := types.Issue{
		Key:         key,
		Title:       "Issue " + key,
		Priority:    types.PriorityP2,
		Status:      types.StatusOpen,
		Category:    types.CategoryBugs,
		Effort:      types.EffortUnspecified,
		Location:    types.Location{File: types.DocOnly},
		SourceRef:   "docs/PENDING_MASTER.md:7",
		SessionID:   "run-1",
		FirstSeenAt: t0,
		LastSeenAt:  t0,
	}
	if mut != nil {
		mut(&is)
	}
	is.ContentHash = is.ComputeContentHash()
	return is
}

func TestReconcileCreatesAndSavesBatch(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	issues := []types.Issue{issue("BUG-1", nil), issue("BUG-2", nil)}
	result, err := Reconcile(ctx, store, issues, nil, Options{
		SessionID: "run-1",
		Source:    "docs/PENDING_MASTER.md",
		RanAt:     t0,
	})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Created != 2 || result.Updated != 0 || result.Skipped != 0 {
		t.Errorf("counts = %d/%d/%d, want 2/0/0", result.Created, result.Updated, result.Skipped)
	}
	if result.Degraded() {
		t.Errorf("unexpected errors: %+v", result.Errors)
	}

	batches, _ := store.ListBatches(ctx, 0)
	if len(batches) != 1 {
		t.Fatalf("expected one batch record, got %d", len(batches))
	}
	b := batches[0]
	if b.Created != 2 || b.SessionID != "run-1" || !b.RanAt.Equal(t0) {
		t.Errorf("batch record wrong: %+v", b)
	}
	if b.CategoryCounts["Bugs"] != 2 || b.PriorityCounts["P2"] != 2 {
		t.Errorf("batch counts wrong: %+v", b)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	issues := []types.Issue{issue("BUG-1", nil), issue("BUG-2", nil), issue("BUG-3", nil)}

	first, err := Reconcile(ctx, store, issues, nil, Options{SessionID: "run-1", RanAt: t0})
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.Created != 3 {
		t.Fatalf("first run created = %d, want 3", first.Created)
	}

	second, err := Reconcile(ctx, store, issues, nil, Options{SessionID: "run-2", RanAt: t0.Add(time.Hour)})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.Created != 0 || second.Updated != 0 || second.Skipped != 3 || len(second.Errors) != 0 {
		t.Errorf("second run = %d/%d/%d/%d errors, want 0/0/3/0",
			second.Created, second.Updated, second.Skipped, len(second.Errors))
	}
}

func TestReconcileCountsUpdates(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	Reconcile(ctx, store, []types.Issue{issue("BUG-1", nil)}, nil, Options{SessionID: "run-1", RanAt: t0})

	changed := issue("BUG-1", func(is *types.Issue) {
		is.Status = types.StatusResolved
	})
	result, err := Reconcile(ctx, store, []types.Issue{changed}, nil, Options{SessionID: "run-2", RanAt: t0.Add(time.Hour)})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Updated != 1 || result.Created != 0 || result.Skipped != 0 {
		t.Errorf("counts = %d/%d/%d, want 0/1/0", result.Created, result.Updated, result.Skipped)
	}

	got, _ := store.GetIssue(ctx, "BUG-1")
	if got.Status != types.StatusResolved {
		t.Errorf("update not persisted: %s", got.Status)
	}
}

func TestReconcileRejectsUnusableRecords(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	bad := issue("", nil)
	good := issue("BUG-1", nil)
	result, err := Reconcile(ctx, store, []types.Issue{bad, good}, nil, Options{SessionID: "run-1", RanAt: t0})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("valid record not processed: created = %d", result.Created)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one key error, got %+v", result.Errors)
	}
}

// failingStore fails every issue write while letting batch records through.
type failingStore struct {
	*memory.MemoryStore
	failKeys map[string]bool
}

func (f *failingStore) UpsertIssue(ctx context.Context, is *types.Issue) error {
	if f.failKeys[is.Key] {
		return errors.New("disk full")
	}
	return f.MemoryStore.UpsertIssue(ctx, is)
}

func TestReconcileSurvivesStoreErrors(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{
		MemoryStore: memory.New(),
		failKeys:    map[string]bool{"BUG-2": true},
	}

	issues := []types.Issue{issue("BUG-1", nil), issue("BUG-2", nil), issue("BUG-3", nil)}
	result, err := Reconcile(ctx, store, issues, nil, Options{SessionID: "run-1", RanAt: t0})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	if result.Created != 2 {
		t.Errorf("counts for surviving keys must stand: created = %d, want 2", result.Created)
	}
	if len(result.Errors) != 1 || result.Errors[0].Key != "BUG-2" {
		t.Fatalf("expected key error for BUG-2, got %+v", result.Errors)
	}
	if !result.Degraded() {
		t.Error("a run with store errors must report degraded")
	}

	batches, _ := store.ListBatches(ctx, 0)
	if len(batches) != 1 || batches[0].Errors != 1 {
		t.Errorf("batch must record the error count: %+v", batches)
	}

	if _, err := store.GetIssue(ctx, "BUG-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("failed key must not be stored, got %v", err)
	}
}

func TestReconcileCarriesConflicts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	conflicts := []resolve.Conflict{{
		Kind: resolve.KindKeyConflict,
		Key:  "bugs--open-prs-2",
	}}
	result, err := Reconcile(ctx, store, []types.Issue{issue("BUG-1", nil)}, conflicts, Options{SessionID: "run-1", RanAt: t0})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Kind != resolve.KindKeyConflict {
		t.Errorf("conflicts not carried into the result: %+v", result.Conflicts)
	}
}

func TestReconcileHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := memory.New()
	result, err := Reconcile(ctx, store, []types.Issue{issue("BUG-1", nil)}, nil, Options{SessionID: "run-1", RanAt: t0})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result == nil {
		t.Fatal("a result must be returned even on cancellation")
	}
	if result.Created != 0 {
		t.Errorf("no issue should be processed after cancel: %+v", result)
	}
}
