package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/paperflow/pkg/paperflow/config"
	"github.com/randalmurphal/paperflow/pkg/paperflow/docstore"
	perrors "github.com/randalmurphal/paperflow/pkg/paperflow/errors"
	"github.com/randalmurphal/paperflow/pkg/paperflow/event"
	"github.com/randalmurphal/paperflow/pkg/paperflow/gate"
	"github.com/randalmurphal/paperflow/pkg/paperflow/llm"
)

// script answers each kind of LLM call the pipeline makes. Nil funcs fall
// back to the string fields.
type script struct {
	Search  string
	Read    func(ctx context.Context, req llm.CompletionRequest) (string, error)
	Cluster string
	Deep    string
	Global  string
	Outline string
	Write   func(ctx context.Context, req llm.CompletionRequest) (string, error)
	Report  string
}

func happyScript() *script {
	return &script{
		Search:  `{"querys": ["graph workflow engines"], "start_date": "2024-01-01", "end_date": "2024-12-31"}`,
		Cluster: `{"clusters": [{"name": "engines", "paper_ids": ["p1", "p2"]}]}`,
		Deep:    "engines share a scheduler design",
		Global:  "<think>weighing trends</think>global analysis of engines",
		Outline: "1 Intro\n2 Method",
		Report:  "# Survey of X\n\nbody",
	}
}

func (s *script) respond(ctx context.Context, req llm.CompletionRequest) (string, error) {
	switch {
	case req.SystemPrompt == searchSystemPrompt:
		return s.Search, nil
	case req.SystemPrompt == readSystemPrompt:
		if s.Read != nil {
			return s.Read(ctx, req)
		}
		return extraction("ignored", "problem"), nil
	case req.SystemPrompt == clusterSystemPrompt:
		return s.Cluster, nil
	case req.SystemPrompt == deepAnalysisSystemPrompt:
		return s.Deep, nil
	case req.SystemPrompt == globalAnalysisSystemPrompt:
		return s.Global, nil
	case req.SystemPrompt == directorSystemPrompt:
		return s.Outline, nil
	case strings.HasPrefix(req.SystemPrompt, "You write one section"):
		if s.Write != nil {
			return s.Write(ctx, req)
		}
		return "section text APPROVED", nil
	case req.SystemPrompt == reportSystemPrompt:
		return s.Report, nil
	}
	return "", fmt.Errorf("unexpected prompt %q", req.SystemPrompt)
}

func (s *script) client() *llm.MockClient {
	return llm.NewMockClient("").WithCompleteFunc(func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		content, err := s.respond(ctx, req)
		if err != nil {
			return nil, err
		}
		return &llm.CompletionResponse{Content: content, Model: "mock"}, nil
	})
}

func extraction(paperID, problem string) string {
	return fmt.Sprintf(`{"paper_id": %q, "core_problem": %q, "key_methodology": {"name": "m", "principle": "p", "novelty": "n"}, "main_results": "r"}`,
		paperID, problem)
}

// recordingSearcher returns fixed papers and remembers the queries it saw.
type recordingSearcher struct {
	mu      sync.Mutex
	papers  []PaperRef
	queries []SearchQuery
}

func newSearcher(ids ...string) *recordingSearcher {
	s := &recordingSearcher{}
	for _, id := range ids {
		s.papers = append(s.papers, PaperRef{ID: id, Title: "Paper " + id, Summary: "abstract of " + id})
	}
	return s
}

func (s *recordingSearcher) Search(_ context.Context, q SearchQuery) ([]PaperRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	return append([]PaperRef(nil), s.papers...), nil
}

func (s *recordingSearcher) lastQuery() SearchQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return SearchQuery{}
	}
	return s.queries[len(s.queries)-1]
}

func testSettings() config.PipelineSettings {
	return config.PipelineSettings{
		ReadConcurrency:    2,
		AnalyzeConcurrency: 2,
		MaxRetrievalRounds: 2,
		RetrievalK:         3,
		ApprovalMarker:     "APPROVED",
		MaxIterations:      100,
		Retry:              perrors.NoRetry,
	}
}

func newTestPipeline(t *testing.T, s *script, searcher Searcher, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(Deps{LLM: s.client(), Searcher: searcher, Store: docstore.NewMemoryStore()}, testSettings(), opts...)
	require.NoError(t, err)
	return p
}

// approveAll resolves the gate with the proposal the first time it is shown.
func approveAll(run *Run, evt event.Event) {
	if evt.Status == event.StatusUserReview {
		run.Gate.Resolve(evt.Payload.(string))
	}
}

// consume reads every event of run, calling onEvent for each, and returns
// them with the run's result.
func consume(t *testing.T, run *Run, onEvent func(*Run, event.Event)) ([]event.Event, *RunState, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var events []event.Event
	for evt := range run.Events.All(ctx) {
		events = append(events, evt)
		if onEvent != nil {
			onEvent(run, evt)
		}
	}
	require.NoError(t, ctx.Err(), "run did not finish")

	state, err := run.Wait(ctx)
	return events, state, err
}

func eventsFor(events []event.Event, stage StageID) []event.Event {
	var out []event.Event
	for _, e := range events {
		if e.Stage == string(stage) {
			out = append(out, e)
		}
	}
	return out
}

func countStatus(events []event.Event, status event.Status) int {
	n := 0
	for _, e := range events {
		if e.Status == status {
			n++
		}
	}
	return n
}

// stubStage runs fn as a Stage.
type stubStage struct {
	id    StageID
	phase Phase
	fn    func(ctx context.Context, state *RunState) error
}

func (s *stubStage) ID() StageID  { return s.id }
func (s *stubStage) Phase() Phase { return s.phase }

func (s *stubStage) Execute(ctx context.Context, state *RunState, _ event.Publisher, _ *gate.Gate) error {
	return s.fn(ctx, state)
}
