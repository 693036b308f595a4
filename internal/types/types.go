// Package types defines core data structures for the backsync engine.
package types

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"time"
)

// DocOnly is the sentinel file value for issues that have no code location.
// It is a deliberate value, not a missing one, and is excluded from the
// file heat map.
const DocOnly = "Doc-only"

// TitleMaxLength is the storage truncation limit for issue titles. The full
// title is still used for dedup fingerprinting before truncation.
const TitleMaxLength = 200

// Issue is the canonical unit of the backlog.
type Issue struct {
	// Key is the stable identity: an explicit natural key from the source
	// ("BUG-1527") or a category-qualified slug derived from the title.
	Key string `json:"key"`

	Title    string   `json:"title"`
	Priority Priority `json:"priority"`
	Status   Status   `json:"status"`
	Category Category `json:"category"`
	Effort   Effort   `json:"effort"`

	Location  Location `json:"location"`
	SourceRef string   `json:"source_ref,omitempty"` // provenance pointer, e.g. "docs/PENDING_MASTER.md:1234"

	SessionID   string    `json:"session_id,omitempty"` // extraction run that last touched this issue
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`

	// StatusHistory is append-only. A reopen appends, it never rewrites.
	StatusHistory []StatusChange `json:"status_history,omitempty"`

	// ContentHash is internal change-detection state, not exported.
	ContentHash string `json:"-"`
}

// StatusChange is one entry in an issue's append-only status history.
type StatusChange struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

// Location points at the code an issue refers to. Lines is nil when the
// source gave no line range.
type Location struct {
	File  string  `json:"file"`
	Lines *[2]int `json:"lines,omitempty"`
}

// TruncateTitle enforces the storage limit on titles. Truncation happens at
// a rune boundary so mid-character cuts cannot reintroduce invalid UTF-8.
func TruncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= TitleMaxLength {
		return title
	}
	return string(runes[:TitleMaxLength])
}

// ComputeContentHash creates a deterministic hash of the issue's substantive
// fields. Identity and bookkeeping fields (key, timestamps, session, history)
// are excluded so that a pure re-extraction of unchanged content hashes equal.
func (i *Issue) ComputeContentHash() string {
	h := sha256.New()
	w := hashFieldWriter{h}

	w.str(i.Title)
	w.str(string(i.Priority))
	w.str(string(i.Status))
	w.str(string(i.Category))
	w.str(string(i.Effort))
	w.str(i.Location.File)
	if i.Location.Lines != nil {
		w.int(i.Location.Lines[0])
		w.int(i.Location.Lines[1])
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}

// hashFieldWriter provides helper methods for writing fields to a hash.
// Each method writes the value followed by a null separator.
type hashFieldWriter struct {
	h hash.Hash
}

func (w hashFieldWriter) str(s string) {
	w.h.Write([]byte(s))
	w.h.Write([]byte{0})
}

func (w hashFieldWriter) int(n int) {
	w.h.Write([]byte(fmt.Sprintf("%d", n)))
	w.h.Write([]byte{0})
}

// Normalize folds unknown enum tokens to their terminal arms and truncates
// the title. It never rejects a value; hard failure is Validate's job.
func (i *Issue) Normalize() {
	if !i.Priority.IsValid() {
		i.Priority = PriorityUnspecified
	}
	if !i.Status.IsValid() {
		i.Status = StatusOpen
	}
	if !i.Category.IsValid() {
		i.Category = CategoryOther
	}
	if !i.Effort.IsValid() {
		i.Effort = EffortUnspecified
	}
	if i.Location.File == "" {
		i.Location.File = DocOnly
	}
	i.Title = TruncateTitle(i.Title)
}

// Validate checks that the issue is structurally usable. Enum drift is not a
// validation failure (Normalize already folded it); only a missing key,
// title, or source ref makes a record unusable.
func (i *Issue) Validate() error {
	if i.Key == "" {
		return &ValidationError{Field: "key", Reason: "key is empty or unresolvable"}
	}
	if i.Title == "" {
		return &ValidationError{Field: "title", Reason: "title is required"}
	}
	if i.SourceRef == "" {
		return &ValidationError{Field: "source_ref", Reason: "source reference is required"}
	}
	if len([]rune(i.Title)) > TitleMaxLength {
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("title exceeds %d characters", TitleMaxLength)}
	}
	return nil
}

// Reopen flips a resolved-family issue back to open, appending to the status
// history. This is the only legal resolved→open transition; the reconciler
// never reverts a resolved status on merge.
func (i *Issue) Reopen(at time.Time, note string) error {
	if !i.Status.IsResolved() {
		return fmt.Errorf("issue %s is %s, not resolved", i.Key, i.Status)
	}
	i.Status = StatusOpen
	i.StatusHistory = append(i.StatusHistory, StatusChange{Status: StatusOpen, At: at, Note: note})
	i.LastSeenAt = at
	return nil
}

// ValidationError reports a structurally unusable field on a raw record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid issue: %s: %s", e.Field, e.Reason)
}

// Batch records one reconciliation run. The latest batch anchors staleness
// (relative to the current run, not wall clock) and the previous batch is the
// anomaly-detection baseline.
type Batch struct {
	SessionID      string         `json:"session_id"`
	RanAt          time.Time      `json:"ran_at"`
	Source         string         `json:"source,omitempty"`
	Created        int            `json:"created"`
	Updated        int            `json:"updated"`
	Skipped        int            `json:"skipped"`
	Errors         int            `json:"errors"`
	CategoryCounts map[string]int `json:"category_counts,omitempty"`
	PriorityCounts map[string]int `json:"priority_counts,omitempty"`
}
