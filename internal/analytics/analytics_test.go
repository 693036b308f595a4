package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EngSayh/backsync/internal/types"
)

var t0 = time.Date(2025, 5, 11, 10, 0, 0, 0, time.UTC)

func issue(key string, mut func(*types.Issue)) *types.Issue {
	is := &types.Issue{
		Key:         key,
		Title:       "Issue " + key,
		Priority:    types.PriorityP2,
		Status:      types.StatusOpen,
		Category:    types.CategoryBugs,
		Effort:      types.EffortM,
		Location:    types.Location{File: types.DocOnly},
		FirstSeenAt: t0,
		LastSeenAt:  t0,
	}
	if mut != nil {
		mut(is)
	}
	return is
}

func TestComputeCounts(t *testing.T) {
	issues := []*types.Issue{
		issue("BUG-1", func(is *types.Issue) { is.Priority = types.PriorityP0 }),
		issue("BUG-2", func(is *types.Issue) { is.Status = types.StatusResolved }),
		issue("BUG-3", func(is *types.Issue) { is.Category = types.CategorySecurity }),
	}

	r := Compute(issues, nil, nil, Options{})
	assert.Equal(t, 3, r.TotalIssues)
	assert.Equal(t, 1, r.ByPriority["P0"])
	assert.Equal(t, 2, r.ByPriority["P2"])
	assert.Equal(t, 1, r.ByStatus["resolved"])
	assert.Equal(t, 2, r.ByStatus["open"])
	assert.Equal(t, 2, r.ByCategory["Bugs"])
	assert.Equal(t, 1, r.ByCategory["Security"])
}

func TestHealthScoreBoundsAndWeights(t *testing.T) {
	assert.Equal(t, 100.0, HealthScore(nil), "empty backlog is healthy")

	allP0 := []*types.Issue{
		issue("A-1", func(is *types.Issue) { is.Priority = types.PriorityP0 }),
		issue("A-2", func(is *types.Issue) { is.Priority = types.PriorityP0 }),
	}
	assert.Equal(t, 0.0, HealthScore(allP0), "all open P0 is the floor")

	mixed := []*types.Issue{
		issue("A-1", func(is *types.Issue) { is.Priority = types.PriorityP0 }),
		issue("A-2", func(is *types.Issue) { is.Priority = types.PriorityP1 }),
		issue("A-3", nil), // P2 open
	}
	got := HealthScore(mixed)
	assert.Greater(t, got, 0.0)
	assert.Less(t, got, 100.0)
}

func TestHealthScoreMonotonicity(t *testing.T) {
	base := []*types.Issue{
		issue("A-1", func(is *types.Issue) { is.Priority = types.PriorityP0 }),
		issue("A-2", func(is *types.Issue) { is.Priority = types.PriorityP1 }),
		issue("A-3", func(is *types.Issue) { is.Priority = types.PriorityP3 }),
	}
	before := HealthScore(base)

	withNewP0 := append([]*types.Issue{}, base...)
	withNewP0 = append(withNewP0, issue("A-4", func(is *types.Issue) { is.Priority = types.PriorityP0 }))
	assert.LessOrEqual(t, HealthScore(withNewP0), before, "adding an open P0 must not raise the score")

	for i := range base {
		resolved := make([]*types.Issue, len(base))
		for j, is := range base {
			cp := *is
			if j == i {
				cp.Status = types.StatusResolved
			}
			resolved[j] = &cp
		}
		assert.GreaterOrEqual(t, HealthScore(resolved), before,
			"resolving %s must not lower the score", base[i].Key)
	}
}

func TestQuickWinsOrdering(t *testing.T) {
	issues := []*types.Issue{
		issue("A-1", func(is *types.Issue) {
			is.Effort = types.EffortS
			is.Priority = types.PriorityP2
			is.FirstSeenAt = t0.Add(time.Hour)
		}),
		issue("A-2", func(is *types.Issue) {
			is.Effort = types.EffortXS
			is.Priority = types.PriorityP0
		}),
		issue("A-3", func(is *types.Issue) {
			is.Effort = types.EffortS
			is.Priority = types.PriorityP2
			is.FirstSeenAt = t0 // older than A-1
		}),
		issue("A-4", func(is *types.Issue) { is.Effort = types.EffortXL }),
		issue("A-5", func(is *types.Issue) {
			is.Effort = types.EffortXS
			is.Status = types.StatusResolved
		}),
		issue("A-6", func(is *types.Issue) {
			is.Effort = types.EffortS
			is.Status = types.StatusInProgress
		}),
	}

	r := Compute(issues, nil, nil, Options{})
	require.Len(t, r.QuickWins, 3)
	assert.Equal(t, "A-2", r.QuickWins[0].Key, "most urgent first")
	assert.Equal(t, "A-3", r.QuickWins[1].Key, "oldest first within a priority")
	assert.Equal(t, "A-1", r.QuickWins[2].Key)
}

func TestStaleIsRelativeToLatestBatch(t *testing.T) {
	issues := []*types.Issue{
		issue("A-1", func(is *types.Issue) { is.LastSeenAt = t0.Add(-30 * 24 * time.Hour) }),
		issue("A-2", func(is *types.Issue) { is.LastSeenAt = t0 }),
		issue("A-3", func(is *types.Issue) {
			is.LastSeenAt = t0.Add(-30 * 24 * time.Hour)
			is.Status = types.StatusResolved
		}),
	}
	latest := &types.Batch{SessionID: "run-9", RanAt: t0}

	r := Compute(issues, latest, nil, Options{StaleAfter: 14 * 24 * time.Hour})
	require.Len(t, r.Stale, 1)
	assert.Equal(t, "A-1", r.Stale[0].Key)

	// Shifting the whole timeline forward changes nothing.
	for _, is := range issues {
		is.LastSeenAt = is.LastSeenAt.Add(90 * 24 * time.Hour)
	}
	latest.RanAt = latest.RanAt.Add(90 * 24 * time.Hour)
	r2 := Compute(issues, latest, nil, Options{StaleAfter: 14 * 24 * time.Hour})
	require.Len(t, r2.Stale, 1)
	assert.Equal(t, "A-1", r2.Stale[0].Key)
}

func TestHeatMapExcludesDocOnlyAndResolved(t *testing.T) {
	issues := []*types.Issue{
		issue("A-1", func(is *types.Issue) { is.Location.File = "app/api/pm/route.ts" }),
		issue("A-2", func(is *types.Issue) { is.Location.File = "app/api/pm/route.ts" }),
		issue("A-3", func(is *types.Issue) { is.Location.File = "lib/auth.ts" }),
		issue("A-4", func(is *types.Issue) {
			is.Location.File = "app/api/pm/route.ts"
			is.Status = types.StatusResolved
		}),
		issue("A-5", nil), // Doc-only
	}

	r := Compute(issues, nil, nil, Options{HeatmapTop: 1})
	require.Len(t, r.HeatMap, 1)
	assert.Equal(t, "app/api/pm/route.ts", r.HeatMap[0].File)
	assert.Equal(t, 2, r.HeatMap[0].Active)
}

func TestAnomalies(t *testing.T) {
	previous := &types.Batch{
		SessionID:      "run-1",
		RanAt:          t0,
		CategoryCounts: map[string]int{"Bugs": 10, "Security": 2, "Features": 4},
		PriorityCounts: map[string]int{"P0": 1},
	}
	latest := &types.Batch{
		SessionID:      "run-2",
		RanAt:          t0.Add(time.Hour),
		CategoryCounts: map[string]int{"Bugs": 11, "Security": 8, "Features": 4},
		PriorityCounts: map[string]int{"P0": 1, "P1": 5},
	}

	r := Compute(nil, latest, previous, Options{AnomalyThreshold: 0.5})
	require.Len(t, r.Anomalies, 2)

	assert.Equal(t, "category", r.Anomalies[0].Dimension)
	assert.Equal(t, "Security", r.Anomalies[0].Value)
	assert.InDelta(t, 3.0, r.Anomalies[0].Change, 0.001)

	assert.Equal(t, "priority", r.Anomalies[1].Dimension)
	assert.Equal(t, "P1", r.Anomalies[1].Value)

	// Totals of nil snapshots still produce a report, never an error.
	assert.Equal(t, 0, r.TotalIssues)
	assert.Equal(t, 100.0, r.HealthScore)
}
