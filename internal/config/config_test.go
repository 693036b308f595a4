package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	ResetForTesting()
	if err := Initialize(); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	if got := GetInt("title.max-length"); got != 200 {
		t.Errorf("title.max-length = %d, want 200", got)
	}
	if got := GetFloat64("resolve.similarity-threshold"); got != 0.85 {
		t.Errorf("resolve.similarity-threshold = %f, want 0.85", got)
	}
	if got := GetDuration("analytics.stale-after"); got != 336*time.Hour {
		t.Errorf("analytics.stale-after = %v, want 336h", got)
	}
	if got := GetString("store.backend"); got != "sqlite" {
		t.Errorf("store.backend = %q, want sqlite", got)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FXZ_STORE_BACKEND", "postgres")
	t.Setenv("FXZ_ANALYTICS_HEATMAP_TOP", "25")

	ResetForTesting()
	if err := Initialize(); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	if got := GetString("store.backend"); got != "postgres" {
		t.Errorf("env override ignored: store.backend = %q", got)
	}
	if got := GetInt("analytics.heatmap-top"); got != 25 {
		t.Errorf("env override ignored: analytics.heatmap-top = %d", got)
	}
}

func TestRuntimeSetWins(t *testing.T) {
	ResetForTesting()
	if err := Initialize(); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	Set("store.backend", "memory")
	if got := GetString("store.backend"); got != "memory" {
		t.Errorf("runtime set ignored: %q", got)
	}
}
