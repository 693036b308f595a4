// Package analytics computes backlog reports from a store snapshot. Every
// function here is pure: the same snapshot and batch history always yield
// the same report, whether the engine runs daily or monthly.
package analytics

import (
	"sort"
	"time"

	"github.com/EngSayh/backsync/internal/types"
)

// Defaults for report tunables.
const (
	DefaultStaleAfter       = 14 * 24 * time.Hour
	DefaultHeatmapTop       = 10
	DefaultAnomalyThreshold = 0.5
)

// Options tunes report computation. Zero values select the defaults.
type Options struct {
	StaleAfter       time.Duration
	HeatmapTop       int
	AnomalyThreshold float64
}

func (o Options) withDefaults() Options {
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.HeatmapTop <= 0 {
		o.HeatmapTop = DefaultHeatmapTop
	}
	if o.AnomalyThreshold <= 0 {
		o.AnomalyThreshold = DefaultAnomalyThreshold
	}
	return o
}

// Report is the aggregate view over the tracked backlog.
type Report struct {
	TotalIssues int `json:"total_issues" yaml:"total_issues"`

	ByPriority map[string]int `json:"by_priority" yaml:"by_priority"`
	ByStatus   map[string]int `json:"by_status" yaml:"by_status"`
	ByCategory map[string]int `json:"by_category" yaml:"by_category"`
	ByEffort   map[string]int `json:"by_effort" yaml:"by_effort"`

	// HealthScore is a bounded [0,100] severity summary. Open P0s weigh
	// three times an open P1; everything else only grows the denominator.
	HealthScore float64 `json:"health_score" yaml:"health_score"`

	QuickWins []types.Issue `json:"quick_wins,omitempty" yaml:"quick_wins,omitempty"`
	Stale     []types.Issue `json:"stale,omitempty" yaml:"stale,omitempty"`
	HeatMap   []FileHeat    `json:"heat_map,omitempty" yaml:"heat_map,omitempty"`
	Anomalies []Anomaly     `json:"anomalies,omitempty" yaml:"anomalies,omitempty"`
}

// FileHeat is one entry in the file heat map ranking.
type FileHeat struct {
	File   string `json:"file" yaml:"file"`
	Active int    `json:"active" yaml:"active"`
}

// Anomaly flags a dimension whose count moved sharply between the previous
// and current batch. Advisory output, never an error.
type Anomaly struct {
	Dimension string  `json:"dimension" yaml:"dimension"` // "category" or "priority"
	Value     string  `json:"value" yaml:"value"`
	Previous  int     `json:"previous" yaml:"previous"`
	Current   int     `json:"current" yaml:"current"`
	Change    float64 `json:"change" yaml:"change"` // relative, signed
}

// Compute builds a report over the snapshot. Latest anchors staleness and
// previous is the anomaly baseline; either may be nil when the store has
// too little batch history.
func Compute(issues []*types.Issue, latest, previous *types.Batch, opts Options) *Report {
	opts = opts.withDefaults()

	r := &Report{
		TotalIssues: len(issues),
		ByPriority:  make(map[string]int),
		ByStatus:    make(map[string]int),
		ByCategory:  make(map[string]int),
		ByEffort:    make(map[string]int),
	}

	for _, is := range issues {
		r.ByPriority[string(is.Priority)]++
		r.ByStatus[string(is.Status)]++
		r.ByCategory[string(is.Category)]++
		r.ByEffort[string(is.Effort)]++
	}

	r.HealthScore = HealthScore(issues)
	r.QuickWins = quickWins(issues)
	if latest != nil {
		r.Stale = stale(issues, latest.RanAt, opts.StaleAfter)
	}
	r.HeatMap = heatMap(issues, opts.HeatmapTop)
	if latest != nil && previous != nil {
		r.Anomalies = anomalies(previous, latest, opts.AnomalyThreshold)
	}
	return r
}

// HealthScore maps the backlog to [0,100]. With N tracked issues, each
// open P0 costs 3 of 3N weight units and each open P1 costs 1. Keeping
// resolved issues in the denominator makes the score monotonic: a new
// open P0 can only lower it, and resolving any issue can only raise it.
func HealthScore(issues []*types.Issue) float64 {
	if len(issues) == 0 {
		return 100
	}
	weight := 0
	for _, is := range issues {
		if is.Status.IsResolved() {
			continue
		}
		switch is.Priority {
		case types.PriorityP0:
			weight += 3
		case types.PriorityP1:
			weight += 1
		}
	}
	return 100 * (1 - float64(weight)/float64(3*len(issues)))
}

// quickWins picks small open items, most urgent and oldest first, so that
// stale small fixes surface before fresh ones.
func quickWins(issues []*types.Issue) []types.Issue {
	var out []types.Issue
	for _, is := range issues {
		if is.Status == types.StatusOpen && is.Effort.IsQuickWin() {
			out = append(out, *is)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		}
		return out[i].FirstSeenAt.Before(out[j].FirstSeenAt)
	})
	return out
}

// stale finds non-resolved issues not seen by the latest run within the
// threshold. Staleness is relative to the batch, not the wall clock.
func stale(issues []*types.Issue, latestRun time.Time, after time.Duration) []types.Issue {
	cutoff := latestRun.Add(-after)
	var out []types.Issue
	for _, is := range issues {
		if !is.Status.IsResolved() && is.LastSeenAt.Before(cutoff) {
			out = append(out, *is)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeenAt.Before(out[j].LastSeenAt)
	})
	return out
}

// heatMap ranks files by active issue count. Doc-only entries are not
// code hotspots and stay out of the ranking.
func heatMap(issues []*types.Issue, top int) []FileHeat {
	counts := make(map[string]int)
	for _, is := range issues {
		if is.Status.IsResolved() {
			continue
		}
		if is.Location.File == "" || is.Location.File == types.DocOnly {
			continue
		}
		counts[is.Location.File]++
	}

	out := make([]FileHeat, 0, len(counts))
	for file, n := range counts {
		out = append(out, FileHeat{File: file, Active: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Active != out[j].Active {
			return out[i].Active > out[j].Active
		}
		return out[i].File < out[j].File
	})
	if len(out) > top {
		out = out[:top]
	}
	return out
}

// anomalies compares per-category and per-priority counts between two
// batches and flags relative moves beyond the threshold.
func anomalies(previous, latest *types.Batch, threshold float64) []Anomaly {
	var out []Anomaly
	out = append(out, diffCounts("category", previous.CategoryCounts, latest.CategoryCounts, threshold)...)
	out = append(out, diffCounts("priority", previous.PriorityCounts, latest.PriorityCounts, threshold)...)
	return out
}

func diffCounts(dimension string, prev, cur map[string]int, threshold float64) []Anomaly {
	keys := make(map[string]struct{}, len(prev)+len(cur))
	for k := range prev {
		keys[k] = struct{}{}
	}
	for k := range cur {
		keys[k] = struct{}{}
	}

	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	var out []Anomaly
	for _, name := range names {
		p, c := prev[name], cur[name]
		if p == c {
			continue
		}
		var change float64
		if p == 0 {
			// New dimension value: always notable.
			change = 1
		} else {
			change = float64(c-p) / float64(p)
		}
		if change >= threshold || change <= -threshold {
			out = append(out, Anomaly{
				Dimension: dimension,
				Value:     name,
				Previous:  p,
				Current:   c,
				Change:    change,
			})
		}
	}
	return out
}
