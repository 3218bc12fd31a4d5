package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/paperflow/internal/telemetry"
	"github.com/randalmurphal/paperflow/pkg/paperflow/arxiv"
	"github.com/randalmurphal/paperflow/pkg/paperflow/checkpoint"
	"github.com/randalmurphal/paperflow/pkg/paperflow/config"
	"github.com/randalmurphal/paperflow/pkg/paperflow/docstore"
	"github.com/randalmurphal/paperflow/pkg/paperflow/gate"
	"github.com/randalmurphal/paperflow/pkg/paperflow/llm"
	"github.com/randalmurphal/paperflow/pkg/paperflow/observability"
	"github.com/randalmurphal/paperflow/pkg/paperflow/pipeline"
)

// app holds the long-lived collaborators of one CLI invocation.
type app struct {
	logger    *slog.Logger
	pipeline  *pipeline.Pipeline
	registry  *gate.Registry
	telemetry *telemetry.Providers
	closers   []func() error
}

func newApp(ctx context.Context, s config.Settings, logger *slog.Logger) (a *app, err error) {
	a = &app{logger: logger, registry: gate.NewRegistry().WithLogger(logger)}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.telemetry, err = telemetry.Init(ctx, s.Telemetry, logger)
	if err != nil {
		return nil, err
	}

	var client llm.Client = llm.NewClaudeCLI(
		llm.WithClaudePath(s.LLM.ClaudePath),
		llm.WithModel(s.LLM.Model),
		llm.WithTimeout(s.LLM.Timeout),
	)
	client = llm.NewRateLimited(client, s.LLM.RPS, s.LLM.Burst)

	searcher := pipeline.NewArxivSearcher(arxiv.NewClient(
		arxiv.WithBaseURL(s.Arxiv.BaseURL),
		arxiv.WithMaxResults(s.Arxiv.MaxResults),
		arxiv.WithMaxPapers(s.Arxiv.MaxPapers),
		arxiv.WithRateLimit(s.Arxiv.RPS),
		arxiv.WithSimhashThreshold(s.Arxiv.SimhashThreshold),
		arxiv.WithRetry(s.Pipeline.Retry),
		arxiv.WithLogger(logger),
	))

	docs, err := openDocuments(s.Store.DocumentsPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, docs.Close)

	checkpoints, err := openCheckpoints(s.Store.CheckpointsPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, checkpoints.Close)

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithRegistry(a.registry),
		pipeline.WithCheckpoints(checkpoints),
	}
	if a.telemetry.Enabled() {
		opts = append(opts,
			pipeline.WithMetrics(observability.NewMetricsRecorder(a.telemetry.MeterProvider())),
			pipeline.WithTracing(observability.NewSpanManager(a.telemetry.TracerProvider())),
		)
	}

	a.pipeline, err = pipeline.New(pipeline.Deps{LLM: client, Searcher: searcher, Store: docs}, s.Pipeline, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func openDocuments(path string) (docstore.Store, error) {
	if path == "" {
		return docstore.NewMemoryStore(), nil
	}
	store, err := docstore.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	return store, nil
}

func openCheckpoints(path string) (checkpoint.Store, error) {
	if path == "" {
		return checkpoint.NewMemoryStore(), nil
	}
	store, err := checkpoint.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return store, nil
}

// Close releases the stores and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	errs = append(errs, a.telemetry.Shutdown(ctx))
	return errors.Join(errs...)
}
