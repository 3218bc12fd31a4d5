package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	perrors "github.com/randalmurphal/paperflow/pkg/paperflow/errors"
)

// DateLayout is the date format of SearchQuery.
const DateLayout = "2006-01-02"

// SearchQuery is the set of queries sent to the search collaborator.
// Dates are YYYY-MM-DD and may be empty.
type SearchQuery struct {
	Queries   []string `json:"querys"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
}

// String renders q in the review format understood by ParseSearchQuery:
//
//	querys=['a', 'b'] start_date='2024-01-01' end_date='2024-12-31'
func (q SearchQuery) String() string {
	quoted := make([]string, len(q.Queries))
	for i, s := range q.Queries {
		quoted[i] = "'" + strings.ReplaceAll(s, "'", "") + "'"
	}
	out := "querys=[" + strings.Join(quoted, ", ") + "]"
	if q.StartDate != "" {
		out += " start_date='" + q.StartDate + "'"
	}
	if q.EndDate != "" {
		out += " end_date='" + q.EndDate + "'"
	}
	return out
}

// Range parses the dates. An empty date yields the zero time.
func (q SearchQuery) Range() (start, end time.Time, err error) {
	if q.StartDate != "" {
		if start, err = time.Parse(DateLayout, q.StartDate); err != nil {
			return start, end, &perrors.ValidationError{Field: "start_date", Message: err.Error()}
		}
	}
	if q.EndDate != "" {
		if end, err = time.Parse(DateLayout, q.EndDate); err != nil {
			return start, end, &perrors.ValidationError{Field: "end_date", Message: err.Error()}
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, &perrors.ValidationError{Field: "end_date", Message: "end date is before start date"}
	}
	return start, end, nil
}

var (
	querysPattern = regexp.MustCompile(`querys\s*=\s*\[([^\]]*)\]`)
	quotedPattern = regexp.MustCompile(`'([^']*)'|"([^"]*)"`)
	startPattern  = regexp.MustCompile(`start_date\s*=\s*['"]([^'"]*)['"]`)
	endPattern    = regexp.MustCompile(`end_date\s*=\s*['"]([^'"]*)['"]`)
)

// ParseSearchQuery reads a query in one of three forms: a JSON object
// ({"querys": [...], "start_date": ..., "end_date": ...}), the review
// format produced by SearchQuery.String, or plain text with one query per
// line. It fails with *errors.HumanInputError when no query is found.
func ParseSearchQuery(text string) (SearchQuery, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SearchQuery{}, &perrors.HumanInputError{Input: text, Message: "empty search query"}
	}

	var q SearchQuery
	switch {
	case strings.HasPrefix(text, "{"):
		var raw struct {
			Querys    []string `json:"querys"`
			Queries   []string `json:"queries"`
			StartDate string   `json:"start_date"`
			EndDate   string   `json:"end_date"`
		}
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return q, &perrors.HumanInputError{Input: text, Message: fmt.Sprintf("invalid JSON query: %v", err)}
		}
		q = SearchQuery{Queries: raw.Querys, StartDate: raw.StartDate, EndDate: raw.EndDate}
		if len(q.Queries) == 0 {
			q.Queries = raw.Queries
		}

	case querysPattern.MatchString(text):
		list := querysPattern.FindStringSubmatch(text)[1]
		for _, m := range quotedPattern.FindAllStringSubmatch(list, -1) {
			q.Queries = append(q.Queries, m[1]+m[2])
		}
		if m := startPattern.FindStringSubmatch(text); m != nil {
			q.StartDate = m[1]
		}
		if m := endPattern.FindStringSubmatch(text); m != nil {
			q.EndDate = m[1]
		}

	default:
		for line := range strings.Lines(text) {
			q.Queries = append(q.Queries, line)
		}
	}

	q.Queries = cleanQueries(q.Queries)
	if len(q.Queries) == 0 {
		return q, &perrors.HumanInputError{Input: text, Message: "no search queries found"}
	}
	if _, _, err := q.Range(); err != nil {
		return q, &perrors.HumanInputError{Input: text, Message: err.Error()}
	}
	return q, nil
}

func cleanQueries(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
