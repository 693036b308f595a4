package classify

import (
	"regexp"
	"strings"
)

// Layout maps taxonomy fields to table column positions. A value of -1 means
// the table has no such column. When a layout is known, each taxonomy is
// classified from its own positionally-fixed column; a priority glyph inside
// the status column stays where it is.
type Layout struct {
	Key      int
	Title    int
	Priority int
	Status   int
	Category int
	Effort   int
	File     int
	Lines    int
}

// DefaultLayout is assumed for pipe tables without a recognizable header:
// | title | priority | status | category | effort | file | lines |.
// Missing trailing columns read as empty cells and classify to the
// terminal enum values.
var DefaultLayout = Layout{Key: -1, Title: 0, Priority: 1, Status: 2, Category: 3, Effort: 4, File: 5, Lines: 6}

// bareIDRe matches a cell that is nothing but an explicit issue ID.
var bareIDRe = regexp.MustCompile(`^[A-Za-z]{2,}-+\d+$`)

// DetectRowLayout chooses the layout for a data row in a headerless table.
// A row leading with a bare issue ID follows the other dominant shape of
// the corpus, | ID | priority | status | title |, where the descriptive
// text sits after the taxonomy columns. Everything else gets DefaultLayout.
func DetectRowLayout(cells []string) *Layout {
	if len(cells) >= 4 && bareIDRe.MatchString(strings.TrimSpace(cells[0])) {
		return &Layout{Key: 0, Title: 3, Priority: 1, Status: 2, Category: -1, Effort: -1, File: -1, Lines: -1}
	}
	l := DefaultLayout
	return &l
}

var headerAliases = map[string]string{
	"id":          "key",
	"key":         "key",
	"issue":       "title",
	"title":       "title",
	"description": "title",
	"task":        "title",
	"item":        "title",
	"priority":    "priority",
	"pri":         "priority",
	"p":           "priority",
	"severity":    "priority",
	"status":      "status",
	"state":       "status",
	"category":    "category",
	"type":        "category",
	"area":        "category",
	"kind":        "category",
	"effort":      "effort",
	"size":        "effort",
	"estimate":    "effort",
	"file":        "file",
	"location":    "file",
	"path":        "file",
	"lines":       "lines",
	"line":        "lines",
}

// DetectLayout inspects a header row and returns a column layout, or nil if
// the row does not look like a header at all. First alias wins per field;
// repeated headers across concatenated sessions produce the same layout.
func DetectLayout(header []string) *Layout {
	l := Layout{Key: -1, Title: -1, Priority: -1, Status: -1, Category: -1, Effort: -1, File: -1, Lines: -1}
	matched := 0
	for col, cell := range header {
		name := strings.ToLower(strings.TrimSpace(normalize(cell)))
		field, ok := headerAliases[name]
		if !ok {
			continue
		}
		matched++
		switch field {
		case "key":
			if l.Key < 0 {
				l.Key = col
			}
		case "title":
			if l.Title < 0 {
				l.Title = col
			}
		case "priority":
			if l.Priority < 0 {
				l.Priority = col
			}
		case "status":
			if l.Status < 0 {
				l.Status = col
			}
		case "category":
			if l.Category < 0 {
				l.Category = col
			}
		case "effort":
			if l.Effort < 0 {
				l.Effort = col
			}
		case "file":
			if l.File < 0 {
				l.File = col
			}
		case "lines":
			if l.Lines < 0 {
				l.Lines = col
			}
		}
	}
	if matched < 2 {
		return nil
	}
	// A table with only an ID column still needs a title; explicit IDs
	// there double as titles ("BUG-010 PM routes missing tenant filter").
	if l.Title < 0 {
		if l.Key >= 0 {
			l.Title = l.Key
		} else {
			l.Title = 0
		}
	}
	return &l
}
