// Package checkpoint persists run state after each stage so an interrupted
// run can be resumed.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// Store persists checkpoints keyed by (run, node).
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores data for runID at nodeID, replacing any earlier
	// checkpoint for the same pair and giving it the run's next sequence.
	Save(ctx context.Context, runID, nodeID string, data []byte) error

	// Load returns ErrNotFound if no checkpoint exists.
	Load(ctx context.Context, runID, nodeID string) ([]byte, error)

	// Latest returns the checkpoint with the highest sequence for runID,
	// or ErrNotFound.
	Latest(ctx context.Context, runID string) (Info, []byte, error)

	// List returns all checkpoints for a run ordered by sequence. A run
	// without checkpoints yields an empty slice.
	List(ctx context.Context, runID string) ([]Info, error)

	// DeleteRun removes all checkpoints for a run.
	DeleteRun(ctx context.Context, runID string) error

	Close() error
}

// Info describes a checkpoint without its payload.
type Info struct {
	RunID     string
	NodeID    string
	Sequence  int
	Timestamp time.Time
	Size      int64
}

var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")
)
