package extract

import (
	"reflect"
	"testing"
)

const sessionDoc = `# Pending Master

## Session 2025-05-11

| ID | Priority | Status | Title |
|----|----------|--------|-------|
| BUG-010 | P2 | open | PM routes missing tenant filter |
| TASK-0263 | P1 | in progress | Wire invoice export |

Some prose between sessions.

## Session 2025-05-12

| ID | Priority | Status | Title |
|----|----------|--------|-------|
| BUG-010 | P2 | resolved | PM routes missing tenant filter |

- [ ] Add audit log for finance routes
- [x] Remove duplicate logger setup
`

func TestScannerTablesAndChecklists(t *testing.T) {
	candidates, errs := ExtractAll(sessionDoc, "docs/PENDING_MASTER.md")
	if len(errs) != 0 {
		t.Fatalf("unexpected region errors: %v", errs)
	}
	if len(candidates) != 5 {
		t.Fatalf("expected 5 candidates, got %d: %+v", len(candidates), candidates)
	}

	first := candidates[0]
	if !first.FromTable {
		t.Error("first candidate should come from a table")
	}
	want := []string{"BUG-010", "P2", "open", "PM routes missing tenant filter"}
	if !reflect.DeepEqual(first.Cells, want) {
		t.Errorf("cells = %v, want %v", first.Cells, want)
	}
	if first.SourceRef != "docs/PENDING_MASTER.md:7" {
		t.Errorf("source ref = %q", first.SourceRef)
	}
	if first.Header == nil {
		t.Error("table candidate should carry its header")
	}

	// The repeated header of session 2 must not surface as data.
	for _, c := range candidates {
		if len(c.Cells) > 0 && c.Cells[0] == "ID" {
			t.Errorf("header row leaked as candidate: %v", c.Cells)
		}
	}

	open := candidates[3]
	if open.Checked == nil || *open.Checked {
		t.Errorf("expected unchecked checklist candidate, got %+v", open)
	}
	done := candidates[4]
	if done.Checked == nil || !*done.Checked {
		t.Errorf("expected checked checklist candidate, got %+v", done)
	}
	if done.Cells[0] != "Remove duplicate logger setup" {
		t.Errorf("checklist cell = %q", done.Cells[0])
	}
}

func TestScannerIsRestartable(t *testing.T) {
	a, _ := ExtractAll(sessionDoc, "m.md")
	b, _ := ExtractAll(sessionDoc, "m.md")
	if !reflect.DeepEqual(a, b) {
		t.Error("re-extraction of an unchanged document must yield identical candidates")
	}
}

func TestScannerRaggedRows(t *testing.T) {
	doc := `| ID | Priority | Status | Title |
|----|----------|--------|-------|
| BUG-1 | P0 |
| BUG-2 | P1 | open | Too | many | cells |
`
	candidates, errs := ExtractAll(doc, "m.md")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if len(candidates[0].Cells) != 4 {
		t.Errorf("short row should be padded to header width, got %v", candidates[0].Cells)
	}
	if len(candidates[1].Cells) != 4 {
		t.Errorf("long row should be truncated to header width, got %v", candidates[1].Cells)
	}
}

func TestScannerMalformedRegionIsIsolated(t *testing.T) {
	doc := `| ID | Priority | Status | Title |
|----|----------|--------|-------|
| BUG-1 | P0 | open | First valid |

|----|----|
| orphaned | separator region |

| ID | Priority | Status | Title |
|----|----------|--------|-------|
| BUG-2 | P1 | open | Second valid |
`
	candidates, errs := ExtractAll(doc, "m.md")
	if len(errs) != 1 {
		t.Fatalf("expected exactly one region error, got %d: %v", len(errs), errs)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected candidates from both valid regions, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].Cells[3] != "First valid" || candidates[1].Cells[3] != "Second valid" {
		t.Errorf("wrong candidates survived: %+v", candidates)
	}
}

func TestScannerGarbledRowDoesNotPoisonTable(t *testing.T) {
	doc := `| ID | Priority | Status | Title |
|----|----------|--------|-------|
| BUG-1 | P0 | open | First valid |
| üî¥ | ‚úÖ | Ô∏è | ‚ö† |
| BUG-2 | P1 | open | Second valid |
`
	candidates, errs := ExtractAll(doc, "m.md")
	if len(errs) != 0 {
		t.Fatalf("a fully garbled row inside a headed table is blank, not an error: %v", errs)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected both rows around the garbled one, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].Cells[3] != "First valid" || candidates[1].Cells[3] != "Second valid" {
		t.Errorf("wrong candidates survived: %+v", candidates)
	}
}

func TestScannerKeepsNonLatinTitles(t *testing.T) {
	doc := "- [ ] إصلاح تسرب الذاكرة في خدمة الفواتير\n- [ ] Починить экспорт счетов\n"
	candidates, errs := ExtractAll(doc, "m.md")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].Cells[0] != "إصلاح تسرب الذاكرة في خدمة الفواتير" {
		t.Errorf("arabic title mangled: %q", candidates[0].Cells[0])
	}
	if candidates[1].Cells[0] != "Починить экспорт счетов" {
		t.Errorf("cyrillic title mangled: %q", candidates[1].Cells[0])
	}
}

func TestScannerLinkInFirstCell(t *testing.T) {
	doc := `| ID | Priority | Status | Title |
|----|----------|--------|-------|
| [Fix tenant filter](app/api/pm/route.ts) | P2 | open | PM routes missing tenant filter |
`
	candidates, _ := ExtractAll(doc, "m.md")
	if len(candidates) != 1 {
		t.Fatalf("expected one candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if c.Cells[0] != "Fix tenant filter" {
		t.Errorf("link text should surface as cell, got %q", c.Cells[0])
	}
	if c.LocationHint != "app/api/pm/route.ts" {
		t.Errorf("link target should surface as location hint, got %q", c.LocationHint)
	}
}

func TestScannerHeaderlessTable(t *testing.T) {
	doc := `| BUG-7 | P3 | open | Sidebar collapses on RTL |
| BUG-8 | P2 | open | Invoice totals drift |
`
	candidates, errs := ExtractAll(doc, "m.md")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates from headerless table, got %d", len(candidates))
	}
	if candidates[0].Header != nil {
		t.Error("headerless rows should not carry a header")
	}
}

func TestStripMojibake(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean ascii", "PM routes missing tenant filter", "PM routes missing tenant filter"},
		{"corrupted checkmark", "‚úÖ Complete", "Complete"},
		{"corrupted red circle", "üî¥ P0", "P0"},
		{"corrupted warning with selector", "‚ö†Ô∏è High number of alerts", "High number of alerts"},
		{"intact emoji kept", "🔴 P0", "🔴 P0"},
		{"accented word kept", "café layout shift", "café layout shift"},
		{"arabic kept", "إصلاح تسرب الذاكرة", "إصلاح تسرب الذاكرة"},
		{"greek kept", "Ανανέωση τιμολογίων", "Ανανέωση τιμολογίων"},
		{"box drawing stripped", "│ inner cell │", "inner cell"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripMojibake(tt.in); got != tt.want {
				t.Errorf("stripMojibake(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFromJSON(t *testing.T) {
	data := []byte(`[
		{"key": "BUG-010", "title": "PM routes missing tenant filter", "priority": "P2", "status": "open", "file": "app/api/pm/route.ts", "lines": [14, 28]},
		{"title": "‚úÖ Remove duplicate logger setup", "status": "resolved"},
		{"title": ""}
	]`)
	candidates, err := FromJSON(data, "import.json")
	if err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates (blank title dropped), got %d", len(candidates))
	}
	if candidates[0].Key != "BUG-010" {
		t.Errorf("key = %q", candidates[0].Key)
	}
	if candidates[0].Cells[6] != "14-28" {
		t.Errorf("lines cell = %q", candidates[0].Cells[6])
	}
	if candidates[1].Cells[0] != "Remove duplicate logger setup" {
		t.Errorf("mojibake should be stripped from JSON titles, got %q", candidates[1].Cells[0])
	}
}

func TestFromJSONStructuralError(t *testing.T) {
	for _, bad := range []string{`{"key": "x"}`, ``, `not json`} {
		if _, err := FromJSON([]byte(bad), "import.json"); err == nil {
			t.Errorf("expected structural error for %q", bad)
		}
	}
}
