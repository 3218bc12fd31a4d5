package pipeline

import (
	"context"

	"github.com/randalmurphal/paperflow/pkg/paperflow/event"
	"github.com/randalmurphal/paperflow/pkg/paperflow/observability"
)

// runPublisher stamps the run ID on every event and counts it.
type runPublisher struct {
	ctx     context.Context
	runID   string
	next    event.Publisher
	metrics observability.MetricsRecorder
}

func (p *runPublisher) Publish(evt event.Event) bool {
	if evt.RunID == "" {
		evt.RunID = p.runID
	}
	ok := p.next.Publish(evt)
	if ok {
		p.metrics.RecordEvent(p.ctx, evt.Stage, string(evt.Status))
	}
	return ok
}
