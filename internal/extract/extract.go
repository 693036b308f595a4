// Package extract turns a semi-structured markdown document, or a raw JSON
// export, into a sequence of candidate issue rows.
//
// The master document is the concatenation of hundreds of editing sessions:
// pipe tables with and without separator rows, ragged column counts, headers
// repeated dozens of times, checklist bullets mixed between tables, and
// emoji that went through a codepage round-trip and came back as garbage.
// Extraction is tolerant of all of it. One malformed region is logged and
// skipped; it never aborts the rest of the document.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/EngSayh/backsync/internal/classify"
)

// Candidate is a raw, not-yet-classified row extracted from source text.
type Candidate struct {
	// Cells holds the row's cell text, mojibake-stripped, padded or
	// truncated to the region's header width for table rows. Flat
	// checklist candidates have exactly one cell.
	Cells []string

	// Header is the region's header row, shared by all candidates of the
	// region. Nil for flat candidates and headerless tables.
	Header []string

	SourceRef string // document:line of the originating row
	Row       int    // 1-based line number within the document
	FromTable bool

	// LocationHint carries the target of a markdown link found in the
	// first cell, e.g. "app/api/pm/route.ts".
	LocationHint string

	// Checked is set for checklist candidates: nil for table rows, false
	// for "- [ ]", true for "- [x]".
	Checked *bool

	// Key is an explicit identity supplied by the JSON escape hatch.
	// Markdown extraction leaves it empty; identity comes from the resolver.
	Key string
}

// RegionError records a single malformed table region that was skipped.
// Recovered, never fatal.
type RegionError struct {
	SourceRef string
	Reason    string
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("%s: %s", e.SourceRef, e.Reason)
}

// StructuralError means the input is not a parseable document or array at
// all. Fatal: no candidates were produced.
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string {
	return "structural input error: " + e.Reason
}

var (
	checklistRe = regexp.MustCompile(`^\s*[-*]?\s*\[( |x|X)\]\s+(.+)$`)
	linkRe      = regexp.MustCompile(`^\[([^\]]+)\]\(([^)]+)\)`)
	separatorRe = regexp.MustCompile(`^\s*\|?[\s:|-]+\|?\s*$`)
)

// Scanner walks a markdown document emitting candidates row by row. A
// Scanner is a pure function of its input: constructing a new Scanner over
// the same document yields the same sequence, which is what makes
// re-extraction after edits idempotent rather than additive.
type Scanner struct {
	source string
	lines  []string

	pos       int
	current   Candidate
	errors    []*RegionError
	header    []string
	inTable   bool
	skipTable bool
}

// NewScanner prepares a scan of doc. Source names the document for
// provenance refs ("docs/PENDING_MASTER.md").
func NewScanner(doc, source string) *Scanner {
	return &Scanner{
		source: source,
		lines:  strings.Split(doc, "\n"),
	}
}

// Scan advances to the next candidate. It returns false when the document
// is exhausted. Malformed regions are recorded in Errors and skipped.
func (s *Scanner) Scan() bool {
	for s.pos < len(s.lines) {
		line := s.lines[s.pos]
		s.pos++
		row := s.pos // 1-based

		trimmed := strings.TrimSpace(line)

		if !isTableRow(trimmed) {
			// Leaving a table region resets its header.
			s.inTable = false
			s.skipTable = false
			s.header = nil

			if m := checklistRe.FindStringSubmatch(line); m != nil {
				checked := m[1] == "x" || m[1] == "X"
				cell := stripMojibake(m[2])
				if strings.TrimSpace(cell) == "" {
					continue
				}
				c := Candidate{
					Cells:     []string{strings.TrimSpace(cell)},
					SourceRef: s.ref(row),
					Row:       row,
					Checked:   &checked,
				}
				s.applyLink(&c)
				s.current = c
				return true
			}
			continue
		}

		if separatorRe.MatchString(trimmed) {
			if !s.inTable {
				// A separator with no header row above it starts a region
				// we cannot interpret. Skip rows until it ends.
				s.errors = append(s.errors, &RegionError{
					SourceRef: s.ref(row),
					Reason:    "table separator without header row",
				})
				s.inTable = true
				s.skipTable = true
			}
			continue
		}

		cells := splitRow(trimmed)
		if len(cells) == 0 {
			if s.inTable && s.header != nil {
				// A row whose every cell stripped to nothing inside an
				// established table is a blank row, not a malformed
				// region; the rows after it are still good.
				continue
			}
			if !s.skipTable {
				s.errors = append(s.errors, &RegionError{
					SourceRef: s.ref(row),
					Reason:    "table row with no parseable cells",
				})
				s.inTable = true
				s.skipTable = true
			}
			continue
		}

		if s.skipTable {
			continue
		}

		if !s.inTable {
			s.inTable = true
			if looksLikeHeader(cells) {
				s.header = cells
				continue
			}
			s.header = nil
		} else if s.header != nil && sameHeader(cells, s.header) {
			// The master document repeats its header every session block.
			continue
		}

		width := len(cells)
		if s.header != nil {
			width = len(s.header)
		}
		cells = fitWidth(cells, width)
		if blankCells(cells) {
			continue
		}

		c := Candidate{
			Cells:     cells,
			Header:    s.header,
			SourceRef: s.ref(row),
			Row:       row,
			FromTable: true,
		}
		s.applyLink(&c)
		s.current = c
		return true
	}
	return false
}

// Candidate returns the candidate found by the last call to Scan.
func (s *Scanner) Candidate() Candidate {
	return s.current
}

// Errors returns the malformed regions skipped so far.
func (s *Scanner) Errors() []*RegionError {
	return s.errors
}

// ExtractAll scans the whole document eagerly.
func ExtractAll(doc, source string) ([]Candidate, []*RegionError) {
	sc := NewScanner(doc, source)
	var out []Candidate
	for sc.Scan() {
		out = append(out, sc.Candidate())
	}
	return out, sc.Errors()
}

func (s *Scanner) ref(row int) string {
	return fmt.Sprintf("%s:%d", s.source, row)
}

// applyLink unwraps a markdown link in the first cell: the link text becomes
// the cell and the target becomes a location hint.
func (s *Scanner) applyLink(c *Candidate) {
	if len(c.Cells) == 0 {
		return
	}
	if m := linkRe.FindStringSubmatch(strings.TrimSpace(c.Cells[0])); m != nil {
		c.Cells[0] = m[1]
		c.LocationHint = m[2]
	}
}

// isTableRow recognizes pipe-delimited rows. A single leading pipe is not
// enough; prose occasionally starts with one.
func isTableRow(trimmed string) bool {
	return strings.HasPrefix(trimmed, "|") && strings.Count(trimmed, "|") >= 2
}

// splitRow splits a pipe row into trimmed, mojibake-stripped cells.
func splitRow(trimmed string) []string {
	trimmed = strings.TrimPrefix(trimmed, "|")
	trimmed = strings.TrimSuffix(trimmed, "|")
	parts := strings.Split(trimmed, "|")
	cells := make([]string, 0, len(parts))
	empty := true
	for _, p := range parts {
		cell := strings.TrimSpace(stripMojibake(p))
		if cell != "" {
			empty = false
		}
		cells = append(cells, cell)
	}
	if empty {
		return nil
	}
	return cells
}

// looksLikeHeader asks the classifier's header vocabulary whether this row
// names columns rather than carrying data.
func looksLikeHeader(cells []string) bool {
	return classify.DetectLayout(cells) != nil
}

func sameHeader(cells, header []string) bool {
	if len(cells) != len(header) {
		return false
	}
	for i := range cells {
		if !strings.EqualFold(strings.TrimSpace(cells[i]), strings.TrimSpace(header[i])) {
			return false
		}
	}
	return true
}

// fitWidth pads or truncates ragged rows to the header width.
func fitWidth(cells []string, width int) []string {
	if width <= 0 || len(cells) == width {
		return cells
	}
	if len(cells) > width {
		return cells[:width]
	}
	out := make([]string, width)
	copy(out, cells)
	return out
}

func blankCells(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
