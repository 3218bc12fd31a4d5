package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/paperflow/pkg/paperflow"
	"github.com/randalmurphal/paperflow/pkg/paperflow/checkpoint"
	"github.com/randalmurphal/paperflow/pkg/paperflow/config"
	"github.com/randalmurphal/paperflow/pkg/paperflow/docstore"
	"github.com/randalmurphal/paperflow/pkg/paperflow/event"
	"github.com/randalmurphal/paperflow/pkg/paperflow/gate"
	"github.com/randalmurphal/paperflow/pkg/paperflow/llm"
	"github.com/randalmurphal/paperflow/pkg/paperflow/observability"
)

var (
	// ErrRunCancelled is the cause recorded when Run.Cancel stops a run.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrRunFinished is returned by Resume for a run that already completed
	// or failed.
	ErrRunFinished = errors.New("run already finished")
)

// Deps are the collaborators shared by all runs. They must be safe for
// concurrent use.
type Deps struct {
	LLM      llm.Client
	Searcher Searcher
	// Store may be nil; extracted papers are then not indexed and section
	// retrieval finds nothing.
	Store docstore.Store
}

// Pipeline builds and executes runs. It is safe for concurrent use.
type Pipeline struct {
	settings config.PipelineSettings
	graph    *paperflow.CompiledGraph[*RunState]
	stages   []Stage

	logger      *slog.Logger
	metrics     observability.MetricsRecorder
	spans       observability.SpanManager
	checkpoints checkpoint.Store
	registry    *gate.Registry
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records run, stage and event metrics.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracing records a span per run and per stage.
func WithTracing(spans observability.SpanManager) Option {
	return func(p *Pipeline) { p.spans = spans }
}

// WithCheckpoints saves RunState after every stage so a run can be
// resumed with Pipeline.Resume.
func WithCheckpoints(store checkpoint.Store) Option {
	return func(p *Pipeline) { p.checkpoints = store }
}

// WithRegistry registers each run's gate under its run ID while the run
// is active.
func WithRegistry(r *gate.Registry) Option {
	return func(p *Pipeline) { p.registry = r }
}

// New wires the stages and compiles the pipeline graph.
func New(deps Deps, settings config.PipelineSettings, opts ...Option) (*Pipeline, error) {
	if deps.LLM == nil {
		return nil, errors.New("pipeline: LLM client is required")
	}
	if deps.Searcher == nil {
		return nil, errors.New("pipeline: searcher is required")
	}

	p := &Pipeline{
		settings: settings,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	writer, err := NewSectionWriter(deps.LLM, deps.Store, SectionWriterConfig{
		ApprovalMarker:     settings.ApprovalMarker,
		MaxRetrievalRounds: settings.MaxRetrievalRounds,
		RetrievalK:         settings.RetrievalK,
		Retry:              settings.Retry,
	}, p.logger)
	if err != nil {
		return nil, err
	}

	p.stages = []Stage{
		NewSearchStage(deps.LLM, deps.Searcher, settings.Retry, p.logger),
		NewReadStage(deps.LLM, deps.Store, settings.ReadConcurrency, settings.Retry, p.logger),
		NewAnalyzeStage(deps.LLM, settings.AnalyzeConcurrency, settings.Retry, p.logger),
		NewWritingDirectorStage(deps.LLM, settings.Retry, p.logger),
		NewSectionWritingStage(writer, p.logger),
		NewReportStage(deps.LLM, settings.Retry, p.logger),
	}

	p.graph, err = buildGraph(p.stages, p.logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// buildGraph wires every stage to the router and adds the failed node.
func buildGraph(stages []Stage, logger *slog.Logger) (*paperflow.CompiledGraph[*RunState], error) {
	g := paperflow.NewGraph[*RunState]().Named("pipeline")
	for _, s := range stages {
		g.AddNode(string(s.ID()), stageNode(observe(s, logger)))
		g.AddConditionalEdge(string(s.ID()), route)
	}
	g.AddNode(string(StageFailed), failedNode)
	g.AddEdge(string(StageFailed), paperflow.END)
	g.SetEntry(string(stages[0].ID()))

	cg, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile pipeline graph: %w", err)
	}
	return cg, nil
}

func stageNode(s Stage) paperflow.NodeFunc[*RunState] {
	return func(ctx paperflow.Context, state *RunState) (*RunState, error) {
		return state, s.Execute(ctx, state, ctx.Events(), ctx.Gate())
	}
}

func failedNode(ctx paperflow.Context, state *RunState) (*RunState, error) {
	state.advance(PhaseFailed)
	ctx.Logger().Error("run failed", slog.Any("errors", state.Errors))
	return state, nil
}

// Stages returns the stages in execution order.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Execute runs state to completion, publishing to events and waiting on g
// for the query review. It returns the final state.
//
// Stage failures are not errors: they leave state in PhaseFailed with
// state.Errors set, and the failing stage's error event is the last one
// published. The error is non-nil only when ctx ended (a single
// "cancelled: ..." error event is published) or the engine itself failed.
func (p *Pipeline) Execute(ctx context.Context, state *RunState, events event.Publisher, g *gate.Gate) (*RunState, error) {
	return p.execute(ctx, state, events, g, func(pctx paperflow.Context, opts []paperflow.RunOption) (*RunState, error) {
		return p.graph.Run(pctx, state, opts...)
	})
}

type runFunc func(pctx paperflow.Context, opts []paperflow.RunOption) (*RunState, error)

func (p *Pipeline) execute(ctx context.Context, state *RunState, events event.Publisher, g *gate.Gate, run runFunc) (*RunState, error) {
	if events == nil {
		events = event.Discard
	}
	metrics := p.metrics
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	pub := &runPublisher{ctx: ctx, runID: state.RunID, next: events, metrics: metrics}

	if g != nil {
		stop := context.AfterFunc(ctx, func() { g.Cancel(context.Cause(ctx)) })
		defer stop()
	}

	pctx := paperflow.NewContext(ctx,
		paperflow.WithLogger(p.logger),
		paperflow.WithEvents(pub),
		paperflow.WithGate(g),
		paperflow.WithCheckpointer(p.checkpoints),
		paperflow.WithContextRunID(state.RunID),
	)

	opts := []paperflow.RunOption{
		paperflow.WithObservabilityLogger(p.logger),
		paperflow.WithMetrics(metrics),
	}
	if p.settings.MaxIterations > 0 {
		opts = append(opts, paperflow.WithMaxIterations(p.settings.MaxIterations))
	}
	if p.spans != nil {
		opts = append(opts, paperflow.WithTracing(p.spans))
	}
	if p.checkpoints != nil {
		opts = append(opts, paperflow.WithCheckpointing(p.checkpoints), paperflow.WithRunID(state.RunID))
	}

	final, err := run(pctx, opts)
	if final == nil {
		final = state
	}
	// The AfterFunc may still be pending; settle the gate before Done closes.
	if g != nil && ctx.Err() != nil {
		g.Cancel(context.Cause(ctx))
	}
	if err == nil {
		if !final.Failed() {
			final.advance(PhaseCompleted)
		}
		return final, nil
	}

	// A stage that already failed has published the run's error event.
	if final.Failed() {
		final.advance(PhaseFailed)
		return final, err
	}
	stage := paperflow.LastNode(err)
	if stage == "" {
		stage = "pipeline"
	}
	var msg string
	if ctx.Err() != nil {
		msg = "cancelled: " + context.Cause(ctx).Error()
	} else {
		msg = err.Error()
	}
	final.Fail(StageID(stage), msg)
	final.advance(PhaseFailed)
	pub.Publish(event.New(stage, event.StatusError, msg))
	return final, err
}

// Run is a run started by Pipeline.Start.
type Run struct {
	ID     string
	Events *event.Channel
	Gate   *gate.Gate

	cancel context.CancelCauseFunc
	done   chan struct{}
	state  *RunState
	err    error
}

// Cancel stops the run. The run publishes a cancelled error event and
// closes Events.
func (r *Run) Cancel() {
	r.cancel(ErrRunCancelled)
}

// Done is closed when the run has finished and Events is closed.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes or ctx is done and returns the
// result of Pipeline.Execute.
func (r *Run) Wait(ctx context.Context) (*RunState, error) {
	select {
	case <-r.done:
		return r.state, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start launches a run of request on its own goroutine.
func (p *Pipeline) Start(ctx context.Context, request string) (*Run, error) {
	state := NewRunState(request)
	return p.launch(ctx, state.RunID, func(ctx context.Context, run *Run) (*RunState, error) {
		return p.Execute(ctx, state, run.Events, run.Gate)
	})
}

// Resume continues a checkpointed run from the stage after its last
// checkpoint. It requires WithCheckpoints. A run whose last checkpoint
// ends it cannot be resumed and returns ErrRunFinished.
func (p *Pipeline) Resume(ctx context.Context, runID string) (*Run, error) {
	if p.checkpoints == nil {
		return nil, errors.New("pipeline: resume requires a checkpoint store")
	}
	_, data, err := p.checkpoints.Latest(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", runID, err)
	}
	cp, err := checkpoint.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", runID, err)
	}
	if cp.NextNode == paperflow.END {
		return nil, fmt.Errorf("resume %s: %w", runID, ErrRunFinished)
	}

	return p.launch(ctx, runID, func(ctx context.Context, run *Run) (*RunState, error) {
		state := &RunState{RunID: runID}
		return p.execute(ctx, state, run.Events, run.Gate, func(pctx paperflow.Context, opts []paperflow.RunOption) (*RunState, error) {
			return p.graph.Resume(pctx, p.checkpoints, runID, opts...)
		})
	})
}

func (p *Pipeline) launch(ctx context.Context, runID string, exec func(context.Context, *Run) (*RunState, error)) (*Run, error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	run := &Run{
		ID:     runID,
		Events: event.NewChannel(event.WithRunID(runID), event.WithLogger(p.logger)),
		Gate:   gate.New(gate.WithName(runID), gate.WithLogger(p.logger)),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if p.registry != nil {
		if err := p.registry.Register(runID, run.Gate); err != nil {
			cancel(nil)
			return nil, err
		}
	}

	go func() {
		defer close(run.done)
		defer run.Events.Close()
		defer cancel(nil)
		if p.registry != nil {
			defer p.registry.Remove(runID)
		}
		run.state, run.err = exec(runCtx, run)
	}()
	return run, nil
}
