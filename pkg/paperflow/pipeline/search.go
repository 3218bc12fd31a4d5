package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	perrors "github.com/randalmurphal/paperflow/pkg/paperflow/errors"
	"github.com/randalmurphal/paperflow/pkg/paperflow/event"
	"github.com/randalmurphal/paperflow/pkg/paperflow/gate"
	"github.com/randalmurphal/paperflow/pkg/paperflow/llm"
)

// SearchStage proposes a query, waits for the human to approve or edit it,
// then runs the search.
type SearchStage struct {
	client   llm.Client
	searcher Searcher
	retry    perrors.RetryConfig
	logger   *slog.Logger
}

// NewSearchStage creates the search stage.
func NewSearchStage(client llm.Client, searcher Searcher, retry perrors.RetryConfig, logger *slog.Logger) *SearchStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchStage{client: client, searcher: searcher, retry: retry, logger: logger}
}

func (s *SearchStage) ID() StageID  { return StageSearch }
func (s *SearchStage) Phase() Phase { return PhaseSearching }

// Execute implements Stage. Without a gate the proposal is used as is.
func (s *SearchStage) Execute(ctx context.Context, state *RunState, events event.Publisher, g *gate.Gate) error {
	content, err := complete(ctx, s.client, s.retry, llm.Prompt(searchSystemPrompt, searchPrompt(state.UserRequest)))
	if err != nil {
		return fmt.Errorf("propose query: %w", err)
	}
	proposal, err := ParseSearchQuery(content)
	if err != nil {
		return perrors.FatalFailure("llm", "propose query", err)
	}

	query := proposal
	if g != nil {
		events.Publish(event.New(string(StageSearch), event.StatusUserReview, proposal.String()))
		reply, err := g.Wait(ctx)
		if err != nil {
			return fmt.Errorf("wait for query review: %w", err)
		}
		if query, err = ParseSearchQuery(reply); err != nil {
			return err
		}
	}
	state.SearchQuery = query
	s.logger.Info("search query approved",
		slog.Any("queries", query.Queries),
		slog.String("start_date", query.StartDate),
		slog.String("end_date", query.EndDate),
	)

	events.Publish(event.New(string(StageSearch), event.StatusProcessing, query.String()))
	results, err := s.searcher.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("search papers: %w", err)
	}
	if len(results) == 0 {
		return &perrors.ValidationError{Field: "search_results", Message: "no related papers found"}
	}
	state.SearchResults = results
	return nil
}

// Summary implements summarizer.
func (s *SearchStage) Summary(state *RunState) any {
	return fmt.Sprintf("found %d papers", len(state.SearchResults))
}
