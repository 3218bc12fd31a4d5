package paperflow

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/randalmurphal/paperflow/pkg/paperflow/checkpoint"
)

// Resume continues runID from its most recent checkpoint. Execution starts
// at the checkpoint's NextNode, or at its NodeID with WithReplayNode.
// Further checkpoints are written to store under the same run ID.
func (cg *CompiledGraph[S]) Resume(ctx Context, store checkpoint.Store, runID string, opts ...RunOption) (S, error) {
	var zero S
	if ctx == nil {
		return zero, ErrNilContext
	}

	_, data, err := store.Latest(ctx, runID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return zero, fmt.Errorf("%w: %s", ErrNoCheckpoints, runID)
	}
	if err != nil {
		return zero, fmt.Errorf("load latest checkpoint: %w", err)
	}
	return cg.resumeFrom(ctx, store, runID, data, opts)
}

// ResumeFrom continues runID from the checkpoint written after nodeID.
func (cg *CompiledGraph[S]) ResumeFrom(ctx Context, store checkpoint.Store, runID, nodeID string, opts ...RunOption) (S, error) {
	var zero S
	if ctx == nil {
		return zero, ErrNilContext
	}

	data, err := store.Load(ctx, runID, nodeID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return zero, fmt.Errorf("%w: %s at node %s", ErrNoCheckpoints, runID, nodeID)
	}
	if err != nil {
		return zero, fmt.Errorf("load checkpoint: %w", err)
	}
	return cg.resumeFrom(ctx, store, runID, data, opts)
}

func (cg *CompiledGraph[S]) resumeFrom(ctx Context, store checkpoint.Store, runID string, data []byte, opts []RunOption) (S, error) {
	var zero S

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cp, err := checkpoint.Unmarshal(data)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}
	if cp.Version != checkpoint.Version {
		return zero, fmt.Errorf("%w: got %d, expected %d",
			ErrCheckpointVersionMismatch, cp.Version, checkpoint.Version)
	}

	var state S
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	if cfg.validateState != nil {
		if err := cfg.validateState(state); err != nil {
			return state, fmt.Errorf("state validation failed: %w", err)
		}
	}

	startNode := cp.NextNode
	if cfg.replayNode {
		startNode = cp.NodeID
	}
	if startNode == END {
		return state, nil
	}
	if !cg.HasNode(startNode) {
		return state, fmt.Errorf("%w: %q", ErrInvalidResumeNode, startNode)
	}

	cfg.checkpointStore = store
	cfg.runID = runID
	cfg.sequence = cp.Sequence

	return cg.run(ctx, state, startNode, &cfg)
}
