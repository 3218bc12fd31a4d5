package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the checkpoint format version. Unmarshal rejects newer ones.
const Version = 1

// Checkpoint is a state snapshot taken after a node completed.
type Checkpoint struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	NodeID    string    `json:"node_id"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	// State is the JSON-encoded workflow state after NodeID ran.
	State json.RawMessage `json:"state"`

	// NextNode is where execution continues on resume.
	NextNode string `json:"next_node"`
}

// New creates a checkpoint. state must already be JSON.
func New(runID, nodeID string, sequence int, state []byte, nextNode string) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		RunID:     runID,
		NodeID:    nodeID,
		Sequence:  sequence,
		Timestamp: time.Now().UTC(),
		State:     state,
		NextNode:  nextNode,
	}
}

// Marshal serializes the checkpoint.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal decodes a checkpoint written by Marshal.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Version > Version {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported %d", c.Version, Version)
	}
	return &c, nil
}
