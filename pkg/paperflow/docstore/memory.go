package docstore

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore keeps documents in memory.
// It is suitable for tests and single-run CLI use.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   []indexed
	byID   map[string]int
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int)}
}

// Add implements Store.
func (s *MemoryStore) Add(ctx context.Context, docs []Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(docs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	for _, d := range docs {
		d.Metadata = maps.Clone(d.Metadata)
		entry := indexed{doc: d, vec: vectorize(d.Text)}
		if i, ok := s.byID[d.ID]; ok {
			s.docs[i] = entry
			continue
		}
		s.byID[d.ID] = len(s.docs)
		s.docs = append(s.docs, entry)
	}
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, texts []string, k int) ([][]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	out := make([][]Match, len(texts))
	for i, text := range texts {
		out[i] = rank(s.docs, text, k)
	}
	return out, nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	return len(s.docs), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.docs = nil
	s.byID = nil
	return nil
}
