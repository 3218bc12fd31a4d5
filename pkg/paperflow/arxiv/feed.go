package arxiv

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

type feed struct {
	Entries []entry `xml:"entry"`
}

type entry struct {
	ID         string     `xml:"id"`
	Title      string     `xml:"title"`
	Summary    string     `xml:"summary"`
	Published  string     `xml:"published"`
	Authors    []author   `xml:"author"`
	Categories []category `xml:"category"`
}

type author struct {
	Name string `xml:"name"`
}

type category struct {
	Term string `xml:"term,attr"`
}

func parseFeed(data []byte) ([]Paper, error) {
	var f feed
	if err := xml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode atom feed: %w", err)
	}

	papers := make([]Paper, 0, len(f.Entries))
	for _, e := range f.Entries {
		published, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published))
		if err != nil {
			return nil, fmt.Errorf("entry %s: parse published: %w", e.ID, err)
		}

		p := Paper{
			ID:        shortID(strings.TrimSpace(e.ID)),
			Title:     collapse(e.Title),
			Abstract:  collapse(e.Summary),
			Published: published,
			Link:      strings.TrimSpace(e.ID),
		}
		for _, a := range e.Authors {
			p.Authors = append(p.Authors, strings.TrimSpace(a.Name))
		}
		for _, c := range e.Categories {
			p.Categories = append(p.Categories, c.Term)
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// collapse joins the line-wrapped text arXiv returns into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
