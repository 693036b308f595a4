package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// jsonRow is the shape accepted by the JSON escape hatch: callers that
// already parsed their own source post a flat array of these.
type jsonRow struct {
	Key       string `json:"key,omitempty"`
	Title     string `json:"title"`
	Priority  string `json:"priority,omitempty"`
	Status    string `json:"status,omitempty"`
	Category  string `json:"category,omitempty"`
	Effort    string `json:"effort,omitempty"`
	File      string `json:"file,omitempty"`
	Lines     []int  `json:"lines,omitempty"`
	SourceRef string `json:"source_ref,omitempty"`
}

// jsonHeader makes JSON rows flow through the same positional
// classification path as table rows.
var jsonHeader = []string{"title", "priority", "status", "category", "effort", "file", "lines"}

// FromJSON converts a raw JSON array of pre-extracted rows into candidates.
// Input that is not a JSON array at all is a StructuralError; individual
// rows are tolerated like any other noisy source (mojibake stripped, empty
// titles dropped).
func FromJSON(data []byte, source string) ([]Candidate, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &StructuralError{Reason: "input is not a JSON array"}
	}

	var rows []jsonRow
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, &StructuralError{Reason: fmt.Sprintf("cannot decode JSON array: %v", err)}
	}

	out := make([]Candidate, 0, len(rows))
	for i, row := range rows {
		title := stripMojibake(row.Title)
		if row.Key != "" && title == "" {
			title = row.Key
		}
		if title == "" {
			continue
		}

		lines := ""
		if len(row.Lines) == 2 {
			lines = fmt.Sprintf("%d-%d", row.Lines[0], row.Lines[1])
		}
		ref := row.SourceRef
		if ref == "" {
			ref = fmt.Sprintf("%s[%d]", source, i)
		}

		out = append(out, Candidate{
			Cells: []string{
				title,
				stripMojibake(row.Priority),
				stripMojibake(row.Status),
				stripMojibake(row.Category),
				stripMojibake(row.Effort),
				row.File,
				lines,
			},
			Header:    jsonHeader,
			SourceRef: ref,
			Row:       i,
			FromTable: true,
			Key:       row.Key,
		})
	}
	return out, nil
}
