package checkpoint_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/paperflow/pkg/paperflow/checkpoint"
)

func TestCheckpoint_RoundTrip(t *testing.T) {
	state := []byte(`{"user_request":"survey diffusion models","current_section_index":-1}`)
	cp := checkpoint.New("run-1", "search", 2, state, "read")

	data, err := cp.Marshal()
	require.NoError(t, err)

	got, err := checkpoint.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.Version, got.Version)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "search", got.NodeID)
	assert.Equal(t, 2, got.Sequence)
	assert.Equal(t, "read", got.NextNode)
	assert.JSONEq(t, string(state), string(got.State))
	assert.False(t, got.Timestamp.IsZero())
}

func TestCheckpoint_UnmarshalErrors(t *testing.T) {
	_, err := checkpoint.Unmarshal([]byte("not json"))
	assert.Error(t, err)

	future, err := json.Marshal(map[string]any{"version": checkpoint.Version + 1, "state": map[string]any{}})
	require.NoError(t, err)
	_, err = checkpoint.Unmarshal(future)
	assert.ErrorContains(t, err, "newer than supported")
}
