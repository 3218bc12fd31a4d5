// Package docstore holds extracted paper text for retrieval during
// section writing.
package docstore

import (
	"context"
	"errors"
)

// Document is one indexed piece of text.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Match is a Document with its relevance to a query text.
type Match struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// DefaultK is the number of matches returned per query text when k <= 0.
const DefaultK = 5

// Store indexes documents and answers similarity queries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Add indexes docs. A document whose ID is already present replaces it.
	Add(ctx context.Context, docs []Document) error

	// Query returns one ranked list per text, in input order, each holding
	// at most k matches by descending score. Documents that share no terms
	// with a text are not returned for it.
	Query(ctx context.Context, texts []string, k int) ([][]Match, error)

	// Len returns the number of indexed documents.
	Len(ctx context.Context) (int, error)

	// Close releases any resources.
	Close() error
}

// Sentinel errors for store operations.
var (
	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("document store closed")

	// ErrEmptyID indicates a document without an ID.
	ErrEmptyID = errors.New("document id is empty")
)

func validate(docs []Document) error {
	for _, d := range docs {
		if d.ID == "" {
			return ErrEmptyID
		}
	}
	return nil
}
