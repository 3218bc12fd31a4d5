// Package arxiv searches the arXiv Atom API for candidate papers.
package arxiv

import (
	"strings"
	"time"
)

// Paper is one search hit.
type Paper struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Abstract   string    `json:"abstract"`
	Authors    []string  `json:"authors"`
	Published  time.Time `json:"published"`
	Categories []string  `json:"categories,omitempty"`
	Link       string    `json:"link"`
}

// Query is a set of search terms sharing one submission date range.
// A zero Start or End leaves that side of the range open.
type Query struct {
	Terms []string
	Start time.Time
	End   time.Time
}

// dateLayout is the arXiv submittedDate range format.
const dateLayout = "200601021504"

// searchQuery renders the arXiv search_query parameter for one term.
func (q Query) searchQuery(term string) string {
	expr := `all:"` + strings.ReplaceAll(strings.TrimSpace(term), `"`, "") + `"`
	if q.Start.IsZero() && q.End.IsZero() {
		return expr
	}

	start := "190001010000"
	if !q.Start.IsZero() {
		start = q.Start.UTC().Format(dateLayout)
	}
	end := "209912312359"
	if !q.End.IsZero() {
		// Inclusive of the whole end day.
		end = q.End.UTC().Format("20060102") + "2359"
	}
	return expr + " AND submittedDate:[" + start + " TO " + end + "]"
}

// inRange reports whether t falls within the query's date range.
func (q Query) inRange(t time.Time) bool {
	if !q.Start.IsZero() && t.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && !t.Before(q.End.AddDate(0, 0, 1)) {
		return false
	}
	return true
}

// shortID strips the abs URL prefix and version suffix from an entry ID.
func shortID(entryID string) string {
	id := entryID
	if i := strings.Index(id, "/abs/"); i >= 0 {
		id = id[i+len("/abs/"):]
	}
	if i := strings.LastIndex(id, "v"); i > 0 && isDigits(id[i+1:]) {
		id = id[:i]
	}
	return id
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
