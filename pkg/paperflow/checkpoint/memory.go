package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps checkpoints in memory. Data is lost when the process
// exits.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]map[string]stored // runID -> nodeID -> checkpoint
	closed bool
}

type stored struct {
	data      []byte
	sequence  int
	timestamp time.Time
}

func (s stored) info(runID, nodeID string) Info {
	return Info{
		RunID:     runID,
		NodeID:    nodeID,
		Sequence:  s.sequence,
		Timestamp: s.timestamp,
		Size:      int64(len(s.data)),
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]map[string]stored)}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, runID, nodeID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	run := m.runs[runID]
	if run == nil {
		run = make(map[string]stored)
		m.runs[runID] = run
	}

	seq := 1
	for _, cp := range run {
		if cp.sequence >= seq {
			seq = cp.sequence + 1
		}
	}

	run[nodeID] = stored{
		data:      append([]byte(nil), data...),
		sequence:  seq,
		timestamp: time.Now().UTC(),
	}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, runID, nodeID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	cp, ok := m.runs[runID][nodeID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), cp.data...), nil
}

// Latest implements Store.
func (m *MemoryStore) Latest(_ context.Context, runID string) (Info, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Info{}, nil, ErrStoreClosed
	}

	var (
		best   stored
		bestID string
		found  bool
	)
	for nodeID, cp := range m.runs[runID] {
		if !found || cp.sequence > best.sequence {
			best, bestID, found = cp, nodeID, true
		}
	}
	if !found {
		return Info{}, nil, ErrNotFound
	}
	return best.info(runID, bestID), append([]byte(nil), best.data...), nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, runID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	run := m.runs[runID]
	infos := make([]Info, 0, len(run))
	for nodeID, cp := range run {
		infos = append(infos, cp.info(runID, nodeID))
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Sequence < infos[j].Sequence
	})
	return infos, nil
}

// DeleteRun implements Store.
func (m *MemoryStore) DeleteRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.runs, runID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.runs = nil
	return nil
}

// Len returns the number of checkpoints across all runs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, run := range m.runs {
		n += len(run)
	}
	return n
}
