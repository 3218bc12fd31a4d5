package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/randalmurphal/paperflow/pkg/paperflow/event"
	"github.com/randalmurphal/paperflow/pkg/paperflow/fanout"
	"github.com/randalmurphal/paperflow/pkg/paperflow/gate"
	"github.com/randalmurphal/paperflow/pkg/paperflow/observability"
)

// Stage is one step of the pipeline.
//
// Execute returns an error when the stage could not do its work. Wrapped by
// observe, that error becomes an entry in RunState.Errors and an error
// event; only cancellation reaches the engine.
type Stage interface {
	ID() StageID
	Phase() Phase
	Execute(ctx context.Context, state *RunState, events event.Publisher, g *gate.Gate) error
}

// summarizer is implemented by stages that attach a payload to their
// completed event.
type summarizer interface {
	Summary(state *RunState) any
}

// observed is the event-publishing decorator around a Stage.
type observed struct {
	stage  Stage
	logger *slog.Logger
}

func observe(s Stage, logger *slog.Logger) Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &observed{stage: s, logger: logger}
}

func (o *observed) ID() StageID  { return o.stage.ID() }
func (o *observed) Phase() Phase { return o.stage.Phase() }

// Execute sets the phase, publishes initializing, runs the stage and
// publishes completed or error. A failure while ctx is done is returned
// unrecorded so the executor can report the cancellation once.
func (o *observed) Execute(ctx context.Context, state *RunState, events event.Publisher, g *gate.Gate) error {
	id := o.stage.ID()
	state.advance(o.stage.Phase())
	events.Publish(event.New(string(id), event.StatusInitializing, nil))

	err := o.run(ctx, state, events, g)
	if err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		msg := err.Error()
		state.Fail(id, msg)
		observability.LogStageFailure(o.logger, string(id), msg)
		events.Publish(event.New(string(id), event.StatusError, msg))
		return nil
	}

	var payload any
	if s, ok := o.stage.(summarizer); ok {
		payload = s.Summary(state)
	}
	events.Publish(event.New(string(id), event.StatusCompleted, payload))
	return nil
}

func (o *observed) run(ctx context.Context, state *RunState, events event.Publisher, g *gate.Gate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("stage panicked",
				slog.String("stage", string(o.stage.ID())),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("stage panicked: %v", r)
		}
	}()
	return o.stage.Execute(ctx, state, events, g)
}

// firstFailure reduces a fan-out error to the task failure that caused it,
// skipping siblings cancelled by fail-fast.
func firstFailure(err error) error {
	var fe *fanout.Error
	if errors.As(err, &fe) && len(fe.Failures) > 0 {
		return fe.First().Err
	}
	return err
}
