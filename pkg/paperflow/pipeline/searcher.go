package pipeline

import (
	"context"

	"github.com/randalmurphal/paperflow/pkg/paperflow/arxiv"
)

// Searcher finds candidate papers for a query.
type Searcher interface {
	Search(ctx context.Context, q SearchQuery) ([]PaperRef, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, q SearchQuery) ([]PaperRef, error)

// Search calls f.
func (f SearcherFunc) Search(ctx context.Context, q SearchQuery) ([]PaperRef, error) {
	return f(ctx, q)
}

// ArxivSearcher adapts an arxiv.Client to Searcher.
type ArxivSearcher struct {
	client *arxiv.Client
}

// NewArxivSearcher wraps client.
func NewArxivSearcher(client *arxiv.Client) *ArxivSearcher {
	return &ArxivSearcher{client: client}
}

// Search implements Searcher.
func (s *ArxivSearcher) Search(ctx context.Context, q SearchQuery) ([]PaperRef, error) {
	start, end, err := q.Range()
	if err != nil {
		return nil, err
	}
	papers, err := s.client.Search(ctx, arxiv.Query{Terms: q.Queries, Start: start, End: end})
	if err != nil {
		return nil, err
	}

	refs := make([]PaperRef, len(papers))
	for i, p := range papers {
		refs[i] = PaperRef{
			ID:         p.ID,
			Title:      p.Title,
			Summary:    p.Abstract,
			Authors:    p.Authors,
			Published:  p.Published,
			Categories: p.Categories,
			URL:        p.Link,
		}
	}
	return refs, nil
}
