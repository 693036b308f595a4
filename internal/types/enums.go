package types

// Priority is the ordered urgency of an issue. Unspecified is a valid
// terminal value, not an error.
type Priority string

// Priority constants, highest urgency first.
const (
	PriorityP0          Priority = "P0"
	PriorityP1          Priority = "P1"
	PriorityP2          Priority = "P2"
	PriorityP3          Priority = "P3"
	PriorityUnspecified Priority = "unspecified"
)

// IsValid checks if the priority value is valid.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityP0, PriorityP1, PriorityP2, PriorityP3, PriorityUnspecified:
		return true
	}
	return false
}

// Rank orders priorities for sorting. P0 ranks first, unspecified last.
func (p Priority) Rank() int {
	switch p {
	case PriorityP0:
		return 0
	case PriorityP1:
		return 1
	case PriorityP2:
		return 2
	case PriorityP3:
		return 3
	default:
		return 4
	}
}

// IsSpecific reports whether the priority carries real information.
// Specific values win over unspecified on merge.
func (p Priority) IsSpecific() bool {
	return p.IsValid() && p != PriorityUnspecified
}

// Status represents the current state of an issue.
type Status string

// Issue status constants.
const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusInReview   Status = "in_review"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
	StatusWontFix    Status = "wont_fix"
)

// IsValid checks if the status value is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked, StatusInReview,
		StatusResolved, StatusClosed, StatusWontFix:
		return true
	}
	return false
}

// IsResolved reports whether the status counts as resolved in analytics.
// Only resolved, closed and wont_fix qualify.
func (s Status) IsResolved() bool {
	switch s {
	case StatusResolved, StatusClosed, StatusWontFix:
		return true
	}
	return false
}

// Category is the open-set taxonomy of an issue. The source corpus drifts
// freely between capitalized and lowercase variants; unknown tokens map to
// CategoryOther, never dropped.
type Category string

// Category constants as observed in the master document.
const (
	CategoryBugs          Category = "Bugs"
	CategoryLogicErrors   Category = "Logic Errors"
	CategoryMissingTests  Category = "Missing Tests"
	CategoryEfficiency    Category = "Efficiency"
	CategorySecurity      Category = "Security"
	CategoryDocumentation Category = "Documentation"
	CategoryNextSteps     Category = "Next Steps"
	CategoryFeatures      Category = "Features"
	CategoryRefactor      Category = "Refactor"
	CategoryTestsLower    Category = "tests"
	CategoryLogicLower    Category = "logic"
	CategoryLayoutLower   Category = "layout"
	CategoryOther         Category = "other"
)

// IsValid checks if the category value is valid.
func (c Category) IsValid() bool {
	switch c {
	case CategoryBugs, CategoryLogicErrors, CategoryMissingTests,
		CategoryEfficiency, CategorySecurity, CategoryDocumentation,
		CategoryNextSteps, CategoryFeatures, CategoryRefactor,
		CategoryTestsLower, CategoryLogicLower, CategoryLayoutLower,
		CategoryOther:
		return true
	}
	return false
}

// IsSpecific reports whether the category carries real information.
func (c Category) IsSpecific() bool {
	return c.IsValid() && c != CategoryOther
}

// Effort is the estimated size of an issue.
type Effort string

// Effort constants, T-shirt sized.
const (
	EffortXS          Effort = "XS"
	EffortS           Effort = "S"
	EffortM           Effort = "M"
	EffortL           Effort = "L"
	EffortXL          Effort = "XL"
	EffortUnspecified Effort = "unspecified"
)

// IsValid checks if the effort value is valid.
func (e Effort) IsValid() bool {
	switch e {
	case EffortXS, EffortS, EffortM, EffortL, EffortXL, EffortUnspecified:
		return true
	}
	return false
}

// IsSpecific reports whether the effort carries real information.
func (e Effort) IsSpecific() bool {
	return e.IsValid() && e != EffortUnspecified
}

// IsQuickWin reports whether the effort is small enough to count as a quick
// win when the issue is still open.
func (e Effort) IsQuickWin() bool {
	return e == EffortXS || e == EffortS
}
