// Package resolve assigns stable keys to classified issues and merges
// duplicates, both within one extraction run and against the canonical
// store.
//
// Identity is a two-tier scheme. An explicit natural key in the source
// ("BUG-010", "task-0263") always wins and is normalized to one canonical
// spelling. Everything else gets a category-qualified slug of its title;
// slug-equal rows merge only when their full titles are near-identical,
// because the corpus reuses generic phrases ("Open PRs", "Missing Tests")
// across unrelated sessions and a false merge silently loses an issue.
package resolve

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/text/unicode/norm"

	"github.com/EngSayh/backsync/internal/types"
)

// DefaultSimilarityThreshold is the normalized-title similarity above which
// slug-equal candidates are considered the same issue.
const DefaultSimilarityThreshold = 0.85

// slugMaxLength bounds the title part of derived keys.
const slugMaxLength = 48

var explicitKeyRe = regexp.MustCompile(`(?i)\b([a-z]{2,})-+(\d+)\b`)

// ConflictKind classifies a recovered resolution conflict.
type ConflictKind string

const (
	// KindKeyConflict marks slug-equal candidates with dissimilar titles
	// that were kept as distinct issues under a disambiguation suffix.
	KindKeyConflict ConflictKind = "key_conflict"

	// KindReopenCandidate marks an open-classified row that hit a
	// resolved issue. The stored status is kept; reverting needs an
	// explicit reopen.
	KindReopenCandidate ConflictKind = "reopen_candidate"
)

// Conflict is a recovered resolution decision surfaced for human review.
// It is a report entry, never an error.
type Conflict struct {
	Kind      ConflictKind `json:"kind"`
	Key       string       `json:"key"`
	OtherKey  string       `json:"other_key,omitempty"`
	SourceRef string       `json:"source_ref,omitempty"`
	Detail    string       `json:"detail"`
}

// Resolver accumulates classified issues, assigning keys and merging as
// they arrive. It is a single-run, single-goroutine accumulator.
type Resolver struct {
	threshold float64

	existing map[string]types.Issue // store snapshot, read-only
	out      map[string]*types.Issue
	order    []string

	// slugArena indexes keys (run and store) by their base slug so that
	// collision checks see every prior claimant of a phrase.
	slugArena map[string][]string

	conflicts []Conflict
}

// NewResolver prepares a resolver for one run. Existing is the store
// snapshot merged against; threshold <= 0 selects the default.
func NewResolver(existing []types.Issue, threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	r := &Resolver{
		threshold: threshold,
		existing:  make(map[string]types.Issue, len(existing)),
		out:       make(map[string]*types.Issue),
		slugArena: make(map[string][]string),
	}
	for _, is := range existing {
		r.existing[is.Key] = is
		if ExplicitKey(is.Key) == "" {
			base := baseSlug(is.Key)
			r.slugArena[base] = append(r.slugArena[base], is.Key)
		}
	}
	return r
}

// Add resolves one classified issue into the run's key set. A non-empty
// Key field is an explicit identity owned by the source and is honored
// verbatim, folded to the canonical spelling only when it matches the ID
// pattern. Otherwise an ID pattern in the title claims the key, and
// failing that identity derives from the title.
func (r *Resolver) Add(in types.Issue) {
	in.Normalize()
	if strings.TrimSpace(in.Title) == "" {
		return
	}

	if k := strings.TrimSpace(in.Key); k != "" {
		if canonical := ExplicitKey(k); canonical != "" {
			k = canonical
		}
		in.Key = k
		r.mergeOrCreate(in)
		return
	}
	if key := ExplicitKey(in.Title); key != "" {
		in.Key = key
		r.mergeOrCreate(in)
		return
	}
	r.addBySlug(in)
}

// Issues returns the run's resolved issues in first-arrival order.
func (r *Resolver) Issues() []types.Issue {
	out := make([]types.Issue, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, *r.out[key])
	}
	return out
}

// Conflicts returns the resolution conflicts recorded so far.
func (r *Resolver) Conflicts() []Conflict {
	return r.conflicts
}

// ExplicitKey extracts and normalizes an explicit ID pattern from text.
// "bug-010", "BUG--010" and "Bug-010" all yield "BUG-010". Returns ""
// when no pattern is present.
func ExplicitKey(text string) string {
	m := explicitKeyRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1]) + "-" + m[2]
}

func (r *Resolver) addBySlug(in types.Issue) {
	base := Slug(in.Title, in.Category)
	full := normalizeTitle(in.Title)

	claimants := r.slugArena[base]
	if r.keyTaken(base) && !containsKey(claimants, base) {
		// A store key can end in a natural number ("part-2") and file
		// under the wrong arena slot; check the base holder directly.
		claimants = append([]string{base}, claimants...)
	}

	// A prior claimant of this slug with a near-identical full title is
	// the same issue; anything less similar is a distinct issue that
	// happens to share a phrase.
	for _, key := range claimants {
		prior := r.lookupTitle(key)
		if Similarity(full, normalizeTitle(prior)) >= r.threshold {
			in.Key = key
			r.mergeOrCreate(in)
			return
		}
	}

	key := base
	for i := 2; r.keyTaken(key); i++ {
		key = fmt.Sprintf("%s-%d", base, i)
	}
	if len(claimants) > 0 {
		r.conflicts = append(r.conflicts, Conflict{
			Kind:      KindKeyConflict,
			Key:       key,
			OtherKey:  claimants[0],
			SourceRef: in.SourceRef,
			Detail:    fmt.Sprintf("title %q shares slug %q with a dissimilar issue", in.Title, base),
		})
	}
	r.slugArena[base] = append(r.slugArena[base], key)
	in.Key = key
	r.mergeOrCreate(in)
}

// keyTaken reports whether a key is already claimed by this run's output
// or by the store snapshot.
func (r *Resolver) keyTaken(key string) bool {
	if _, ok := r.out[key]; ok {
		return true
	}
	_, ok := r.existing[key]
	return ok
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// lookupTitle finds the authoritative title for a key, preferring the
// run's merged state over the store snapshot.
func (r *Resolver) lookupTitle(key string) string {
	if is, ok := r.out[key]; ok {
		return is.Title
	}
	if is, ok := r.existing[key]; ok {
		return is.Title
	}
	return ""
}

func (r *Resolver) mergeOrCreate(in types.Issue) {
	if cur, ok := r.out[in.Key]; ok {
		r.merge(cur, in)
		return
	}
	if prior, ok := r.existing[in.Key]; ok {
		cur := prior
		r.out[in.Key] = &cur
		r.order = append(r.order, in.Key)
		r.merge(&cur, in)
		return
	}

	if len(in.StatusHistory) == 0 {
		in.StatusHistory = []types.StatusChange{{Status: in.Status, At: in.FirstSeenAt}}
	}
	in.ContentHash = in.ComputeContentHash()
	created := in
	r.out[in.Key] = &created
	r.order = append(r.order, in.Key)
}

// merge folds an incoming classification into the current record under the
// precedence rules: specific beats unspecified/other, a more urgent
// priority beats a less urgent one, and a resolved-family status never
// reverts without an explicit reopen. Bookkeeping fields always update.
func (r *Resolver) merge(cur *types.Issue, in types.Issue) {
	if t := strings.TrimSpace(in.Title); t != "" && t != cur.Title {
		cur.Title = t
	}

	if in.Priority.IsSpecific() {
		if !cur.Priority.IsSpecific() || in.Priority.Rank() < cur.Priority.Rank() {
			cur.Priority = in.Priority
		}
	}
	if in.Category.IsSpecific() {
		if !cur.Category.IsSpecific() || categoryRank(in.Category) < categoryRank(cur.Category) {
			cur.Category = in.Category
		}
	}
	if in.Effort.IsSpecific() && !cur.Effort.IsSpecific() {
		cur.Effort = in.Effort
	}

	r.mergeStatus(cur, in)
	mergeLocation(cur, in)

	if !in.LastSeenAt.IsZero() {
		cur.LastSeenAt = in.LastSeenAt
	}
	if in.SourceRef != "" {
		cur.SourceRef = in.SourceRef
	}
	if in.SessionID != "" {
		cur.SessionID = in.SessionID
	}
	cur.ContentHash = cur.ComputeContentHash()
}

func (r *Resolver) mergeStatus(cur *types.Issue, in types.Issue) {
	if in.Status == cur.Status {
		return
	}
	if cur.Status.IsResolved() && !in.Status.IsResolved() {
		r.conflicts = append(r.conflicts, Conflict{
			Kind:      KindReopenCandidate,
			Key:       cur.Key,
			SourceRef: in.SourceRef,
			Detail:    fmt.Sprintf("row classified %s but issue is %s; reopen explicitly to revert", in.Status, cur.Status),
		})
		return
	}
	cur.Status = in.Status
	cur.StatusHistory = append(cur.StatusHistory, types.StatusChange{
		Status: in.Status,
		At:     in.LastSeenAt,
	})
}

// categoryRank orders categories by severity so that merging is
// independent of candidate arrival order. Security outranks everything;
// the lowercase drift variants sit just above other.
func categoryRank(c types.Category) int {
	switch c {
	case types.CategorySecurity:
		return 0
	case types.CategoryBugs:
		return 1
	case types.CategoryLogicErrors:
		return 2
	case types.CategoryMissingTests:
		return 3
	case types.CategoryEfficiency:
		return 4
	case types.CategoryRefactor:
		return 5
	case types.CategoryFeatures:
		return 6
	case types.CategoryNextSteps:
		return 7
	case types.CategoryDocumentation:
		return 8
	case types.CategoryTestsLower, types.CategoryLogicLower, types.CategoryLayoutLower:
		return 9
	default:
		return 10
	}
}

func mergeLocation(cur *types.Issue, in types.Issue) {
	if in.Location.File != "" && in.Location.File != types.DocOnly {
		cur.Location.File = in.Location.File
	}
	if in.Location.Lines != nil {
		lines := *in.Location.Lines
		cur.Location.Lines = &lines
	}
}

// Slug derives the base identity slug for a title without an explicit key.
// The category qualifier keeps generic phrases in unrelated areas apart.
func Slug(title string, category types.Category) string {
	t := slugify(title)
	if len(t) > slugMaxLength {
		t = strings.TrimRight(t[:slugMaxLength], "-")
	}
	c := slugify(string(category))
	if c == "" {
		c = "other"
	}
	return c + "--" + t
}

// baseSlug strips a disambiguation suffix ("-2", "-3") so that store keys
// re-enter the same arena slot they were minted from.
func baseSlug(key string) string {
	i := strings.LastIndex(key, "-")
	if i <= 0 || i == len(key)-1 {
		return key
	}
	suffix := key[i+1:]
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return key
		}
	}
	// A title can end in a natural number too; addBySlug re-checks the
	// base holder before trusting this slot.
	if strings.Contains(key, "--") {
		return key[:i]
	}
	return key
}

// slugify lowercases NFKC-normalized text and folds every non-alphanumeric
// run into a single hyphen.
func slugify(s string) string {
	s = strings.ToLower(norm.NFKC.String(s))
	var b strings.Builder
	b.Grow(len(s))
	lastHyphen := true
	for _, r := range s {
		alnum := r >= 'a' && r <= 'z' || r >= '0' && r <= '9'
		if alnum {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// normalizeTitle is the similarity-comparison form of a title: NFKC,
// lowercased, whitespace collapsed. Unlike the slug it is not truncated,
// so long titles that diverge past the slug limit still compare unequal.
func normalizeTitle(title string) string {
	s := strings.ToLower(norm.NFKC.String(title))
	return strings.Join(strings.Fields(s), " ")
}

// Similarity is the Levenshtein ratio of two normalized titles in [0,1].
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	dist := dmp.DiffLevenshtein(diffs)
	return 1 - float64(dist)/float64(longest)
}
