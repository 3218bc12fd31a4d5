package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/paperflow/pkg/paperflow/event"
)

func runObserved(t *testing.T, ctx context.Context, s Stage, state *RunState) ([]event.Event, error) {
	t.Helper()
	ch := event.NewChannel()
	err := observe(s, nil).Execute(ctx, state, ch, nil)
	ch.Close()
	return ch.Drain(context.Background()), err
}

func TestObserve_Success(t *testing.T) {
	s := &stubStage{id: StageRead, phase: PhaseReading, fn: func(context.Context, *RunState) error { return nil }}
	state := NewRunState("x")
	state.CurrentStage = PhaseSearching

	events, err := runObserved(t, context.Background(), s, state)
	require.NoError(t, err)
	assert.Equal(t, PhaseReading, state.CurrentStage)
	require.Len(t, events, 2)
	assert.Equal(t, event.StatusInitializing, events[0].Status)
	assert.Equal(t, event.StatusCompleted, events[1].Status)
	assert.Equal(t, "read", events[1].Stage)
}

func TestObserve_FailureIsData(t *testing.T) {
	s := &stubStage{id: StageRead, phase: PhaseReading, fn: func(context.Context, *RunState) error {
		return errors.New("collaborator down")
	}}
	state := NewRunState("x")

	events, err := runObserved(t, context.Background(), s, state)
	require.NoError(t, err)
	assert.Equal(t, "collaborator down", state.Errors[StageRead])
	require.Len(t, events, 2)
	assert.Equal(t, event.StatusError, events[1].Status)
	assert.Equal(t, "collaborator down", events[1].Payload)
	assert.Equal(t, StageFailed, Next(state))
}

func TestObserve_PanicRecovered(t *testing.T) {
	s := &stubStage{id: StageAnalyze, phase: PhaseAnalyzing, fn: func(context.Context, *RunState) error {
		panic("nil map")
	}}
	state := NewRunState("x")

	events, err := runObserved(t, context.Background(), s, state)
	require.NoError(t, err)
	assert.Equal(t, "stage panicked: nil map", state.Errors[StageAnalyze])
	assert.Equal(t, event.StatusError, events[len(events)-1].Status)
}

func TestObserve_FirstErrorKept(t *testing.T) {
	s := &stubStage{id: StageRead, phase: PhaseReading, fn: func(context.Context, *RunState) error {
		return errors.New("second")
	}}
	state := NewRunState("x")
	state.Fail(StageRead, "first")

	_, _ = runObserved(t, context.Background(), s, state)
	assert.Equal(t, "first", state.Errors[StageRead])
}

func TestObserve_CancellationNotRecorded(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	cause := errors.New("user left")
	s := &stubStage{id: StageSearch, phase: PhaseSearching, fn: func(ctx context.Context, _ *RunState) error {
		cancel(cause)
		return ctx.Err()
	}}
	state := NewRunState("x")

	events, err := runObserved(t, ctx, s, state)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, state.Errors)
	assert.Zero(t, countStatus(events, event.StatusError))
}
