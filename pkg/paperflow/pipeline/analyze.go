package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	perrors "github.com/randalmurphal/paperflow/pkg/paperflow/errors"
	"github.com/randalmurphal/paperflow/pkg/paperflow/event"
	"github.com/randalmurphal/paperflow/pkg/paperflow/fanout"
	"github.com/randalmurphal/paperflow/pkg/paperflow/gate"
	"github.com/randalmurphal/paperflow/pkg/paperflow/llm"
)

// AnalyzeStage clusters the extracted papers, analyses each cluster in
// parallel and streams a global analysis.
type AnalyzeStage struct {
	client      llm.Client
	concurrency int
	retry       perrors.RetryConfig
	logger      *slog.Logger
}

// NewAnalyzeStage creates the analyze stage.
func NewAnalyzeStage(client llm.Client, concurrency int, retry perrors.RetryConfig, logger *slog.Logger) *AnalyzeStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeStage{client: client, concurrency: concurrency, retry: retry, logger: logger}
}

func (s *AnalyzeStage) ID() StageID  { return StageAnalyze }
func (s *AnalyzeStage) Phase() Phase { return PhaseAnalyzing }

// Execute implements Stage.
func (s *AnalyzeStage) Execute(ctx context.Context, state *RunState, events event.Publisher, _ *gate.Gate) error {
	if len(state.ExtractedPapers) == 0 {
		return &perrors.ValidationError{Field: "extracted_papers", Message: "nothing to analyse"}
	}

	events.Publish(event.New(string(StageAnalyze), event.StatusProcessing, "clustering papers"))
	clusters, err := s.cluster(ctx, state.ExtractedPapers)
	if err != nil {
		return err
	}
	state.Clusters = clusters

	events.Publish(event.New(string(StageAnalyze), event.StatusProcessing,
		fmt.Sprintf("analysing %d clusters", len(clusters))))
	byID := make(map[string]ExtractedPaper, len(state.ExtractedPapers))
	for _, p := range state.ExtractedPapers {
		byID[p.PaperID] = p
	}
	cfg := fanout.Config{MaxConcurrency: s.concurrency, FailFast: true}
	analyses, err := fanout.Map(ctx, cfg, clusters, func(ctx context.Context, _ int, c Cluster) (ClusterAnalysis, error) {
		papers := make([]ExtractedPaper, 0, len(c.PaperIDs))
		for _, id := range c.PaperIDs {
			if p, ok := byID[id]; ok {
				papers = append(papers, p)
			}
		}
		text, err := complete(ctx, s.client, s.retry,
			llm.Prompt(deepAnalysisSystemPrompt, deepAnalysisPrompt(state.UserRequest, c, papers)))
		if err != nil {
			return ClusterAnalysis{}, fmt.Errorf("cluster %q: %w", c.Name, err)
		}
		return ClusterAnalysis{Cluster: c, Analysis: text}, nil
	})
	if err != nil {
		return fmt.Errorf("deep analysis: %w", firstFailure(err))
	}
	state.ClusterAnalyses = analyses

	global, err := streamTo(ctx, s.client, s.retry,
		llm.Prompt(globalAnalysisSystemPrompt, globalAnalysisPrompt(state.UserRequest, analyses)),
		StageAnalyze, events)
	if err != nil {
		return fmt.Errorf("global analysis: %w", err)
	}
	if global == "" {
		return &perrors.ValidationError{Field: "analysis", Message: "empty global analysis"}
	}
	state.Analysis = global
	return nil
}

// cluster asks for a thematic grouping. Unknown IDs are dropped, papers
// left out are collected into an extra cluster, and an empty grouping
// falls back to a single cluster of everything.
func (s *AnalyzeStage) cluster(ctx context.Context, papers []ExtractedPaper) ([]Cluster, error) {
	content, err := complete(ctx, s.client, s.retry, llm.Prompt(clusterSystemPrompt, clusterPrompt(papers)))
	if err != nil {
		return nil, fmt.Errorf("cluster papers: %w", err)
	}
	resp, err := llm.DecodeJSON[struct {
		Clusters []Cluster `json:"clusters"`
	}](content)
	if err != nil {
		return nil, perrors.FatalFailure("llm", "cluster", err)
	}

	known := make(map[string]bool, len(papers))
	for _, p := range papers {
		known[p.PaperID] = true
	}
	assigned := make(map[string]bool, len(papers))

	var clusters []Cluster
	for _, c := range resp.Clusters {
		var ids []string
		for _, id := range c.PaperIDs {
			if known[id] && !assigned[id] {
				assigned[id] = true
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			clusters = append(clusters, Cluster{Name: c.Name, PaperIDs: ids})
		}
	}

	var rest []string
	for _, p := range papers {
		if !assigned[p.PaperID] {
			rest = append(rest, p.PaperID)
		}
	}
	if len(clusters) == 0 {
		s.logger.Warn("clustering returned no usable clusters, using one cluster")
		return []Cluster{{Name: "all papers", PaperIDs: rest}}, nil
	}
	if len(rest) > 0 {
		clusters = append(clusters, Cluster{Name: "other", PaperIDs: rest})
	}
	return clusters, nil
}

// Summary implements summarizer.
func (s *AnalyzeStage) Summary(state *RunState) any {
	return fmt.Sprintf("analysed %d papers in %d clusters", len(state.ExtractedPapers), len(state.Clusters))
}
