// Package engine wires the extraction pipeline end to end: extract,
// classify, resolve, reconcile, report. It is the facade the CLI and the
// HTTP server call into.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/EngSayh/backsync/internal/analytics"
	"github.com/EngSayh/backsync/internal/classify"
	"github.com/EngSayh/backsync/internal/extract"
	"github.com/EngSayh/backsync/internal/reconcile"
	"github.com/EngSayh/backsync/internal/resolve"
	"github.com/EngSayh/backsync/internal/storage"
	"github.com/EngSayh/backsync/internal/types"
)

// Options tunes one engine instance.
type Options struct {
	SimilarityThreshold float64
	Analytics           analytics.Options
}

// Engine runs the pipeline against one canonical store. One import runs
// at a time; callers serialize concurrent imports.
type Engine struct {
	store storage.Store
	log   zerolog.Logger
	opts  Options
}

// New creates an engine over the given store.
func New(store storage.Store, log zerolog.Logger, opts Options) *Engine {
	return &Engine{store: store, log: log, opts: opts}
}

// ImportMarkdown extracts doc and reconciles it into the store. Malformed
// regions are logged and skipped; the returned result covers the rest.
func (e *Engine) ImportMarkdown(ctx context.Context, doc, source string) (*reconcile.Result, error) {
	candidates, regionErrs := extract.ExtractAll(doc, source)
	for _, re := range regionErrs {
		e.log.Warn().Str("region", re.SourceRef).Str("reason", re.Reason).
			Msg("skipped malformed region")
	}
	return e.run(ctx, candidates, source)
}

// ImportJSON reconciles a pre-extracted JSON array into the store.
func (e *Engine) ImportJSON(ctx context.Context, data []byte, source string) (*reconcile.Result, error) {
	candidates, err := extract.FromJSON(data, source)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, candidates, source)
}

func (e *Engine) run(ctx context.Context, candidates []extract.Candidate, source string) (*reconcile.Result, error) {
	session := uuid.NewString()
	now := time.Now().UTC()

	existing, err := e.store.ListIssues(ctx, storage.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load store snapshot: %w", err)
	}
	snapshot := make([]types.Issue, len(existing))
	for i, is := range existing {
		snapshot[i] = *is
	}

	resolver := resolve.NewResolver(snapshot, e.opts.SimilarityThreshold)
	for _, c := range candidates {
		resolver.Add(buildIssue(c, session, now))
	}

	result, err := reconcile.Reconcile(ctx, e.store, resolver.Issues(), resolver.Conflicts(), reconcile.Options{
		SessionID: session,
		Source:    source,
		RanAt:     now,
	})
	if result != nil {
		e.log.Info().
			Str("session", session).
			Str("source", source).
			Int("created", result.Created).
			Int("updated", result.Updated).
			Int("skipped", result.Skipped).
			Int("errors", len(result.Errors)).
			Int("conflicts", len(result.Conflicts)).
			Msg("reconciliation finished")
	}
	return result, err
}

// Report computes the analytics report over the current store snapshot.
func (e *Engine) Report(ctx context.Context) (*analytics.Report, error) {
	issues, err := e.store.ListIssues(ctx, storage.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load issues: %w", err)
	}
	batches, err := e.store.ListBatches(ctx, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch history: %w", err)
	}

	var latest, previous *types.Batch
	if len(batches) > 0 {
		latest = batches[0]
	}
	if len(batches) > 1 {
		previous = batches[1]
	}
	return analytics.Compute(issues, latest, previous, e.opts.Analytics), nil
}

// Reopen flips a resolved issue back to open. This is the explicit signal
// the merge rules require before a resolved status may revert.
func (e *Engine) Reopen(ctx context.Context, key, note string) (*types.Issue, error) {
	is, err := e.store.GetIssue(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := is.Reopen(time.Now().UTC(), note); err != nil {
		return nil, err
	}
	is.ContentHash = is.ComputeContentHash()
	if err := e.store.UpsertIssue(ctx, is); err != nil {
		return nil, fmt.Errorf("failed to persist reopen of %s: %w", key, err)
	}
	e.log.Info().Str("key", key).Msg("issue reopened")
	return is, nil
}

// buildIssue classifies one candidate into a typed issue. Table rows read
// each taxonomy from its own column; flat checklist entries scan tokens
// left to right.
func buildIssue(c extract.Candidate, session string, now time.Time) types.Issue {
	is := types.Issue{
		Key:         c.Key,
		Priority:    types.PriorityUnspecified,
		Status:      types.StatusOpen,
		Category:    types.CategoryOther,
		Effort:      types.EffortUnspecified,
		SourceRef:   c.SourceRef,
		SessionID:   session,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}

	if c.FromTable {
		layout := layoutFor(c)
		is.Title = cellAt(c.Cells, layout.Title)
		if is.Key == "" && layout.Key >= 0 {
			// An ID cell can carry prose next to the ID ("BUG-010 PM
			// routes..."); only the ID pattern itself is identity.
			is.Key = resolve.ExplicitKey(cellAt(c.Cells, layout.Key))
		}
		is.Priority = classify.Priority(cellAt(c.Cells, layout.Priority))
		is.Status = classify.Status(cellAt(c.Cells, layout.Status))
		if layout.Category >= 0 {
			is.Category = classify.Category(cellAt(c.Cells, layout.Category))
		}
		if layout.Effort >= 0 {
			is.Effort = classify.Effort(cellAt(c.Cells, layout.Effort))
		}
		if layout.File >= 0 {
			is.Location.File = cellAt(c.Cells, layout.File)
		}
		if layout.Lines >= 0 {
			is.Location.Lines = parseLines(cellAt(c.Cells, layout.Lines))
		}
	} else {
		buildFlat(&is, c)
	}

	if is.Location.File == "" && c.LocationHint != "" {
		is.Location.File = c.LocationHint
	}
	return is
}

func layoutFor(c extract.Candidate) *classify.Layout {
	if c.Header != nil {
		if l := classify.DetectLayout(c.Header); l != nil {
			return l
		}
	}
	return classify.DetectRowLayout(c.Cells)
}

// buildFlat classifies a checklist entry: the whole cell is the title, and
// the first recognizable token of each taxonomy claims that slot.
func buildFlat(is *types.Issue, c extract.Candidate) {
	cell := cellAt(c.Cells, 0)
	is.Title = cell

	for _, token := range strings.Fields(cell) {
		if !is.Priority.IsSpecific() {
			if p := classify.Priority(token); p.IsSpecific() {
				is.Priority = p
			}
		}
		if !is.Category.IsSpecific() {
			if cat := classify.Category(token); cat.IsSpecific() {
				is.Category = cat
			}
		}
		if !is.Effort.IsSpecific() {
			if e := classify.Effort(token); e.IsSpecific() {
				is.Effort = e
			}
		}
		if is.Status == types.StatusOpen {
			if s, ok := classify.StatusKnown(token); ok && s != types.StatusOpen {
				is.Status = s
			}
		}
	}

	// The checkbox outranks any status word in the text.
	if c.Checked != nil && *c.Checked {
		is.Status = types.StatusResolved
	}
}

// parseLines reads "14-28", "14:28" or a single "14" into a line range.
func parseLines(cell string) *[2]int {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	sep := strings.IndexAny(cell, "-:")
	if sep < 0 {
		n, err := strconv.Atoi(cell)
		if err != nil {
			return nil
		}
		return &[2]int{n, n}
	}
	start, err1 := strconv.Atoi(strings.TrimSpace(cell[:sep]))
	end, err2 := strconv.Atoi(strings.TrimSpace(cell[sep+1:]))
	if err1 != nil || err2 != nil {
		return nil
	}
	return &[2]int{start, end}
}

func cellAt(cells []string, col int) string {
	if col < 0 || col >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[col])
}
