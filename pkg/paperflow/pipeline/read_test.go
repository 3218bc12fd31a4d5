package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/paperflow/pkg/paperflow/docstore"
	perrors "github.com/randalmurphal/paperflow/pkg/paperflow/errors"
	"github.com/randalmurphal/paperflow/pkg/paperflow/event"
	"github.com/randalmurphal/paperflow/pkg/paperflow/llm"
)

// paperIDOf pulls the paper ID out of a read prompt.
func paperIDOf(req llm.CompletionRequest) string {
	for line := range strings.Lines(req.UserText()) {
		if id, ok := strings.CutPrefix(strings.TrimSpace(line), "paper_id: "); ok {
			return id
		}
	}
	return ""
}

func TestReadStage_PreservesOrder(t *testing.T) {
	ids := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"}
	s := happyScript()
	s.Read = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		time.Sleep(time.Duration(rand.IntN(20)) * time.Millisecond)
		id := paperIDOf(req)
		return extraction("model-made-up-"+id, "problem of "+id), nil
	}

	store := docstore.NewMemoryStore()
	stage := NewReadStage(s.client(), store, 4, perrors.NoRetry, nil)
	state := NewRunState("survey")
	state.SearchResults = newSearcher(ids...).papers

	ch := event.NewChannel()
	require.NoError(t, stage.Execute(context.Background(), state, ch, nil))

	require.Len(t, state.ExtractedPapers, len(ids))
	for i, e := range state.ExtractedPapers {
		assert.Equal(t, ids[i], e.PaperID, "search result ID wins")
		assert.Equal(t, "problem of "+ids[i], e.CoreProblem)
	}

	n, err := store.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(ids), n)

	ch.Close()
	evts := ch.Drain(context.Background())
	require.Len(t, evts, 1)
	assert.Equal(t, "reading 8 papers", evts[0].Payload)
}

func TestReadStage_Failures(t *testing.T) {
	tests := []struct {
		name    string
		read    func(id string) (string, error)
		wantMsg string
	}{
		{
			name: "malformed extraction",
			read: func(id string) (string, error) {
				if id == "p2" {
					return "no json here", nil
				}
				return extraction(id, "x"), nil
			},
			wantMsg: "paper p2",
		},
		{
			name: "llm error",
			read: func(id string) (string, error) {
				return "", errors.New("upstream exploded")
			},
			wantMsg: "upstream exploded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := happyScript()
			s.Read = func(_ context.Context, req llm.CompletionRequest) (string, error) {
				return tt.read(paperIDOf(req))
			}
			stage := NewReadStage(s.client(), nil, 2, perrors.NoRetry, nil)
			state := NewRunState("survey")
			state.SearchResults = newSearcher("p1", "p2", "p3").papers

			err := stage.Execute(context.Background(), state, event.Discard, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "read papers:")
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Empty(t, state.ExtractedPapers)
		})
	}
}

func TestReadStage_Retry(t *testing.T) {
	retry := perrors.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffFactor: 1}

	tests := []struct {
		name      string
		firstErr  error
		wantCalls int32
		wantErr   bool
	}{
		{
			name:      "transient failure retried",
			firstErr:  llm.NewError("complete", errors.New("overloaded"), true),
			wantCalls: 2,
		},
		{
			name:      "fatal failure attempted once",
			firstErr:  llm.NewError("complete", errors.New("bad request"), false),
			wantCalls: 1,
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p1Calls atomic.Int32
			s := happyScript()
			s.Read = func(_ context.Context, req llm.CompletionRequest) (string, error) {
				id := paperIDOf(req)
				if id == "p1" && p1Calls.Add(1) == 1 {
					return "", tt.firstErr
				}
				return extraction(id, "x"), nil
			}
			stage := NewReadStage(s.client(), nil, 2, retry, nil)
			state := NewRunState("survey")
			state.SearchResults = newSearcher("p1", "p2").papers

			err := stage.Execute(context.Background(), state, event.Discard, nil)
			assert.Equal(t, tt.wantCalls, p1Calls.Load())
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.firstErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, state.ExtractedPapers, 2)
			assert.Equal(t, "p1", state.ExtractedPapers[0].PaperID)
		})
	}
}

func TestReadStage_FailureReportsCause(t *testing.T) {
	boom := errors.New("extraction service down")
	s := happyScript()
	s.Read = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		if paperIDOf(req) == "p2" {
			return "", boom
		}
		<-ctx.Done()
		return "", ctx.Err()
	}
	stage := NewReadStage(s.client(), nil, 3, perrors.NoRetry, nil)
	state := NewRunState("survey")
	state.SearchResults = newSearcher("p1", "p2", "p3").papers

	err := stage.Execute(context.Background(), state, event.Discard, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, strings.HasPrefix(err.Error(), "read papers: paper p2:"), err.Error())
	assert.NotContains(t, err.Error(), "context canceled")
	assert.NotContains(t, err.Error(), "\n")
}

func TestReadStage_NothingToRead(t *testing.T) {
	stage := NewReadStage(happyScript().client(), nil, 2, perrors.NoRetry, nil)
	err := stage.Execute(context.Background(), NewRunState("survey"), event.Discard, nil)
	var verr *perrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPaperDocument(t *testing.T) {
	doc := paperDocument(
		PaperRef{ID: "p1", Title: "Graph Engines", URL: "http://x/p1"},
		ExtractedPaper{
			CoreProblem:    "scheduling",
			KeyMethodology: KeyMethodology{Name: "DAG", Principle: "topological order"},
			DatasetsUsed:   []string{"A", "B"},
			MainResults:    "faster",
		},
	)
	assert.Equal(t, "p1", doc.ID)
	assert.Equal(t, "Graph Engines", doc.Metadata["title"])
	assert.Contains(t, doc.Text, "Problem: scheduling")
	assert.Contains(t, doc.Text, "Datasets: A, B")
	assert.NotContains(t, doc.Text, "Metrics:")
	assert.NotContains(t, doc.Text, "Limitations:")
}
