// Package classify normalizes free-text priority, status, category and
// effort tokens into the canonical enums.
//
// The source corpus is hostile: hundreds of editing sessions produced cells
// like "🔴 P0", "Critical", "‚úÖ Complete" (a checkmark emoji whose UTF-8
// bytes were re-decoded through a legacy codepage) and bare "p2". Matching
// runs in three stages: exact case-insensitive match, synonym/substring
// match, then the enum's terminal arm. Classification never fails; every
// input maps to something.
package classify

import (
	"strings"

	"github.com/EngSayh/backsync/internal/types"
)

// synonym tables. Longer phrases must come before their substrings so that
// "missing tests" wins over "tests". Entries are matched against the
// lowercased, mojibake-stripped cell.

var prioritySynonyms = []struct {
	token string
	value types.Priority
}{
	{"p0", types.PriorityP0},
	{"critical", types.PriorityP0},
	{"urgent", types.PriorityP0},
	{"blocker", types.PriorityP0},
	{"🔴", types.PriorityP0},
	{"p1", types.PriorityP1},
	{"high", types.PriorityP1},
	{"🟠", types.PriorityP1},
	{"p2", types.PriorityP2},
	{"normal", types.PriorityP2},
	{"🟡", types.PriorityP2},
	{"p3", types.PriorityP3},
	{"low", types.PriorityP3},
	{"minor", types.PriorityP3},
	{"nice to have", types.PriorityP3},
	{"🟢", types.PriorityP3},
}

var statusSynonyms = []struct {
	token string
	value types.Status
}{
	{"in progress", types.StatusInProgress},
	{"in-progress", types.StatusInProgress},
	{"in_progress", types.StatusInProgress},
	{"wip", types.StatusInProgress},
	{"doing", types.StatusInProgress},
	{"started", types.StatusInProgress},
	{"in review", types.StatusInReview},
	{"in-review", types.StatusInReview},
	{"in_review", types.StatusInReview},
	{"review", types.StatusInReview},
	{"won't fix", types.StatusWontFix},
	{"wont fix", types.StatusWontFix},
	{"wont_fix", types.StatusWontFix},
	{"wontfix", types.StatusWontFix},
	{"invalid", types.StatusWontFix},
	{"❌", types.StatusWontFix},
	{"blocked", types.StatusBlocked},
	{"stuck", types.StatusBlocked},
	{"waiting", types.StatusBlocked},
	{"on hold", types.StatusBlocked},
	{"⚠", types.StatusBlocked},
	{"resolved", types.StatusResolved},
	{"fixed", types.StatusResolved},
	{"done", types.StatusResolved},
	{"complete", types.StatusResolved}, // also matches "completed"
	{"✅", types.StatusResolved},
	{"✔", types.StatusResolved},
	{"closed", types.StatusClosed},
	{"open", types.StatusOpen},
	{"todo", types.StatusOpen},
	{"to do", types.StatusOpen},
	{"pending", types.StatusOpen},
	{"not started", types.StatusOpen},
	{"new", types.StatusOpen},
}

var categorySynonyms = []struct {
	token string
	value types.Category
}{
	{"missing tests", types.CategoryMissingTests},
	{"missing test", types.CategoryMissingTests},
	{"logic errors", types.CategoryLogicErrors},
	{"logic error", types.CategoryLogicErrors},
	{"next steps", types.CategoryNextSteps},
	{"next step", types.CategoryNextSteps},
	{"documentation", types.CategoryDocumentation},
	{"docs", types.CategoryDocumentation},
	{"efficiency", types.CategoryEfficiency},
	{"performance", types.CategoryEfficiency},
	{"perf", types.CategoryEfficiency},
	{"security", types.CategorySecurity},
	{"vulnerability", types.CategorySecurity},
	{"refactoring", types.CategoryRefactor},
	{"refactor", types.CategoryRefactor},
	{"features", types.CategoryFeatures},
	{"feature", types.CategoryFeatures},
	{"enhancement", types.CategoryFeatures},
	{"bugs", types.CategoryBugs},
	{"bug", types.CategoryBugs},
	{"layout", types.CategoryLayoutLower},
	{"logic", types.CategoryLogicLower},
	{"tests", types.CategoryTestsLower},
}

var effortSynonyms = []struct {
	token string
	value types.Effort
}{
	{"xs", types.EffortXS},
	{"trivial", types.EffortXS},
	{"xl", types.EffortXL},
	{"epic", types.EffortXL},
	{"small", types.EffortS},
	{"medium", types.EffortM},
	{"large", types.EffortL},
}

// Priority classifies a free-text priority cell.
func Priority(cell string) types.Priority {
	norm := normalize(cell)
	switch norm {
	case "p0":
		return types.PriorityP0
	case "p1":
		return types.PriorityP1
	case "p2":
		return types.PriorityP2
	case "p3":
		return types.PriorityP3
	}
	for _, syn := range prioritySynonyms {
		if containsToken(cell, norm, syn.token) {
			return syn.value
		}
	}
	return types.PriorityUnspecified
}

// Status classifies a free-text status cell.
func Status(cell string) types.Status {
	norm := normalize(cell)
	if s := types.Status(norm); s.IsValid() {
		return s
	}
	for _, syn := range statusSynonyms {
		if containsToken(cell, norm, syn.token) {
			return syn.value
		}
	}
	return types.StatusOpen
}

// StatusKnown is like Status but also reports whether the cell actually
// matched anything. Flat candidates need the distinction: an unrecognized
// fragment should not claim the status slot.
func StatusKnown(cell string) (types.Status, bool) {
	norm := normalize(cell)
	if s := types.Status(norm); s.IsValid() {
		return s, true
	}
	for _, syn := range statusSynonyms {
		if containsToken(cell, norm, syn.token) {
			return syn.value, true
		}
	}
	return types.StatusOpen, false
}

// Category classifies a free-text category cell. The lowercase drift
// variants ("tests", "logic", "layout") are preserved as their own arms on
// exact match; mixed-case variants fold into the canonical capitalized ones
// via the synonym table.
func Category(cell string) types.Category {
	norm := normalize(cell)
	if c := types.Category(cell); c.IsValid() {
		return c
	}
	switch norm {
	case "tests":
		return types.CategoryTestsLower
	case "logic":
		return types.CategoryLogicLower
	case "layout":
		return types.CategoryLayoutLower
	}
	for _, syn := range categorySynonyms {
		if strings.Contains(norm, syn.token) {
			return syn.value
		}
	}
	return types.CategoryOther
}

// Effort classifies a free-text effort cell.
func Effort(cell string) types.Effort {
	norm := normalize(cell)
	switch strings.ToUpper(norm) {
	case "XS":
		return types.EffortXS
	case "S":
		return types.EffortS
	case "M":
		return types.EffortM
	case "L":
		return types.EffortL
	case "XL":
		return types.EffortXL
	}
	for _, syn := range effortSynonyms {
		if strings.Contains(norm, syn.token) {
			return syn.value
		}
	}
	return types.EffortUnspecified
}

// normalize lowercases a cell and strips non-ASCII noise. Corrupted emoji
// sequences survive in the raw cell (the synonym tables match them there);
// the normalized form is for plain-text matching only.
func normalize(cell string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(cell) {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return strings.ToLower(strings.TrimSpace(b.String()))
}

// containsToken matches a synonym token against either the raw cell (for
// emoji tokens) or the normalized ASCII form.
func containsToken(raw, norm, token string) bool {
	if strings.ContainsFunc(token, func(r rune) bool { return r >= 128 }) {
		return strings.Contains(raw, token)
	}
	// Short alphanumeric tokens like "p0" must match as whole words so that
	// "wip0" or a hash fragment cannot classify as P0.
	if len(token) <= 3 {
		return hasWord(norm, token)
	}
	return strings.Contains(norm, token)
}

// hasWord reports whether needle appears in haystack delimited by
// non-alphanumeric runes.
func hasWord(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		beforeOK := start == 0 || !isAlnum(haystack[start-1])
		afterOK := end == len(haystack) || !isAlnum(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isAlnum(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
