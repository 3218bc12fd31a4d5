package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/paperflow/pkg/paperflow/docstore"
	perrors "github.com/randalmurphal/paperflow/pkg/paperflow/errors"
	"github.com/randalmurphal/paperflow/pkg/paperflow/event"
	"github.com/randalmurphal/paperflow/pkg/paperflow/fanout"
	"github.com/randalmurphal/paperflow/pkg/paperflow/gate"
	"github.com/randalmurphal/paperflow/pkg/paperflow/llm"
)

// ReadStage extracts every search result in parallel and indexes the
// extractions in the document store.
type ReadStage struct {
	client      llm.Client
	store       docstore.Store
	concurrency int
	retry       perrors.RetryConfig
	logger      *slog.Logger
}

// NewReadStage creates the read stage. store may be nil, in which case
// nothing is indexed.
func NewReadStage(client llm.Client, store docstore.Store, concurrency int, retry perrors.RetryConfig, logger *slog.Logger) *ReadStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadStage{client: client, store: store, concurrency: concurrency, retry: retry, logger: logger}
}

func (s *ReadStage) ID() StageID  { return StageRead }
func (s *ReadStage) Phase() Phase { return PhaseReading }

// Execute implements Stage.
func (s *ReadStage) Execute(ctx context.Context, state *RunState, events event.Publisher, _ *gate.Gate) error {
	papers := state.SearchResults
	if len(papers) == 0 {
		return &perrors.ValidationError{Field: "search_results", Message: "nothing to read"}
	}
	events.Publish(event.New(string(StageRead), event.StatusProcessing, fmt.Sprintf("reading %d papers", len(papers))))

	cfg := fanout.Config{MaxConcurrency: s.concurrency, FailFast: true}
	extracted, err := fanout.Map(ctx, cfg, papers, func(ctx context.Context, _ int, p PaperRef) (ExtractedPaper, error) {
		return s.extract(ctx, p)
	})
	if err != nil {
		return fmt.Errorf("read papers: %w", firstFailure(err))
	}
	state.ExtractedPapers = extracted

	if s.store != nil {
		docs := make([]docstore.Document, len(extracted))
		for i, e := range extracted {
			docs[i] = paperDocument(papers[i], e)
		}
		_, err := perrors.Do(ctx, s.retry, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.store.Add(ctx, docs)
		})
		if err != nil {
			return fmt.Errorf("index papers: %w", err)
		}
		s.logger.Debug("papers indexed", slog.Int("count", len(docs)))
	}
	return nil
}

func (s *ReadStage) extract(ctx context.Context, p PaperRef) (ExtractedPaper, error) {
	req := llm.Prompt(readSystemPrompt, readPrompt(p)).WithSchema(extractedPaperSchema)
	content, err := complete(ctx, s.client, s.retry, req)
	if err != nil {
		return ExtractedPaper{}, fmt.Errorf("paper %s: %w", p.ID, err)
	}
	e, err := llm.DecodeJSON[ExtractedPaper](content)
	if err != nil {
		return ExtractedPaper{}, fmt.Errorf("paper %s: %w", p.ID, perrors.FatalFailure("llm", "extract", err))
	}
	// The search result is authoritative for the ID.
	e.PaperID = p.ID
	return e, nil
}

// paperDocument renders an extraction as retrievable text.
func paperDocument(p PaperRef, e ExtractedPaper) docstore.Document {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", p.Title)
	fmt.Fprintf(&b, "Problem: %s\n", e.CoreProblem)
	fmt.Fprintf(&b, "Method: %s. %s %s\n", e.KeyMethodology.Name, e.KeyMethodology.Principle, e.KeyMethodology.Novelty)
	if len(e.DatasetsUsed) > 0 {
		fmt.Fprintf(&b, "Datasets: %s\n", strings.Join(e.DatasetsUsed, ", "))
	}
	if len(e.EvaluationMetrics) > 0 {
		fmt.Fprintf(&b, "Metrics: %s\n", strings.Join(e.EvaluationMetrics, ", "))
	}
	fmt.Fprintf(&b, "Results: %s\n", e.MainResults)
	if e.Limitations != "" {
		fmt.Fprintf(&b, "Limitations: %s\n", e.Limitations)
	}
	return docstore.Document{
		ID:   p.ID,
		Text: strings.TrimSpace(b.String()),
		Metadata: map[string]string{
			"paper_id": p.ID,
			"title":    p.Title,
			"url":      p.URL,
		},
	}
}

// Summary implements summarizer.
func (s *ReadStage) Summary(state *RunState) any {
	return fmt.Sprintf("extracted %d papers", len(state.ExtractedPapers))
}
