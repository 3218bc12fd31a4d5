package pipeline

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/paperflow/pkg/paperflow"
	"github.com/randalmurphal/paperflow/pkg/paperflow/docstore"
	perrors "github.com/randalmurphal/paperflow/pkg/paperflow/errors"
	"github.com/randalmurphal/paperflow/pkg/paperflow/event"
	"github.com/randalmurphal/paperflow/pkg/paperflow/llm"
)

func writerClient(fn func(n int, req llm.CompletionRequest) string) *llm.MockClient {
	var calls atomic.Int32
	return llm.NewMockClient("").WithCompleteFunc(func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		n := int(calls.Add(1))
		return &llm.CompletionResponse{Content: fn(n, req)}, nil
	})
}

func newWriter(t *testing.T, client llm.Client, store docstore.Store, rounds int) *SectionWriter {
	t.Helper()
	w, err := NewSectionWriter(client, store, SectionWriterConfig{
		ApprovalMarker:     "APPROVED",
		MaxRetrievalRounds: rounds,
		RetrievalK:         2,
		Retry:              perrors.NoRetry,
	}, nil)
	require.NoError(t, err)
	return w
}

func sectionsOf(n int) []SectionSpec {
	out := make([]SectionSpec, n)
	for i := range out {
		out[i] = SectionSpec{Number: string(rune('1' + i)), Title: "Part"}
	}
	return out
}

func TestNextSectionStep(t *testing.T) {
	two := sectionsOf(2)
	tests := []struct {
		name  string
		state WritingState
		want  string
	}{
		{"nothing written", WritingState{Sections: two, CurrentSectionIndex: -1}, StepWrite},
		{"incomplete", WritingState{Sections: two, CurrentSectionIndex: 0, WrittenSections: []SectionState{{}}}, StepRetrieve},
		{"next section", WritingState{Sections: two, CurrentSectionIndex: 0, WrittenSections: []SectionState{{Completed: true}}}, StepWrite},
		{"last done", WritingState{Sections: two, CurrentSectionIndex: 1, WrittenSections: []SectionState{{Completed: true}, {Completed: true}}}, StepDone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextSectionStep(&tt.state))
		})
	}
}

func TestSectionWriter_ApprovedFirstTime(t *testing.T) {
	client := writerClient(func(int, llm.CompletionRequest) string { return "text\nAPPROVED" })
	w := newWriter(t, client, docstore.NewMemoryStore(), 3)

	ws, err := w.Write(paperflow.NewContext(context.Background()), &WritingState{Outline: "1 Intro\n2 Method"})
	require.NoError(t, err)
	assert.Equal(t, 2, ws.WriteSteps)
	assert.Equal(t, 1, ws.CurrentSectionIndex)
	require.Len(t, ws.WrittenSections, 2)
	for _, s := range ws.WrittenSections {
		assert.True(t, s.Completed)
		assert.False(t, s.Forced)
		assert.Equal(t, "text", s.Content)
		assert.Zero(t, s.RetrievalRounds)
	}
}

func TestSectionWriter_TerminatesWithinBound(t *testing.T) {
	for _, tc := range []struct{ sections, rounds int }{{1, 0}, {1, 3}, {3, 2}, {5, 1}} {
		client := writerClient(func(int, llm.CompletionRequest) string { return "need more material" })
		w := newWriter(t, client, docstore.NewMemoryStore(), tc.rounds)

		ws, err := w.Write(paperflow.NewContext(context.Background()), &WritingState{Sections: sectionsOf(tc.sections)})
		require.NoError(t, err)

		assert.Equal(t, w.MaxWriteSteps(tc.sections), ws.WriteSteps)
		assert.LessOrEqual(t, ws.WriteSteps, tc.sections*(1+tc.rounds))
		require.Len(t, ws.WrittenSections, tc.sections)
		for _, s := range ws.WrittenSections {
			assert.True(t, s.Completed)
			assert.True(t, s.Forced)
			assert.Equal(t, tc.rounds, s.RetrievalRounds)
		}
	}
}

func TestSectionWriter_RetrievesAndDedups(t *testing.T) {
	store := docstore.NewMemoryStore()
	require.NoError(t, store.Add(context.Background(), []docstore.Document{
		{ID: "p1", Text: "graph engine scheduling intro"},
		{ID: "p2", Text: "graph engine intro benchmarks"},
	}))

	var sawMaterial atomic.Bool
	client := writerClient(func(n int, req llm.CompletionRequest) string {
		if n == 1 {
			return "graph engine intro draft"
		}
		text := req.UserText()
		if strings.Count(text, "[p1]") == 1 && strings.Count(text, "[p2]") == 1 {
			sawMaterial.Store(true)
		}
		return "final APPROVED"
	})
	w := newWriter(t, client, store, 3)

	ch := event.NewChannel()
	ctx := paperflow.NewContext(context.Background(), paperflow.WithEvents(ch))
	ws, err := w.Write(ctx, &WritingState{Sections: []SectionSpec{{Number: "1", Title: "graph engine intro"}}})
	require.NoError(t, err)

	assert.True(t, sawMaterial.Load())
	assert.Equal(t, 2, ws.WriteSteps)
	assert.Equal(t, 1, ws.WrittenSections[0].RetrievalRounds)
	assert.True(t, ws.WrittenSections[0].Completed)
	assert.Empty(t, ws.RetrievedDocs, "material is cleared when the section completes")

	ch.Close()
	var retrieved int
	for _, e := range ch.Drain(context.Background()) {
		if s, ok := e.Payload.(string); ok && strings.HasPrefix(s, "retrieved 2 documents") {
			retrieved++
		}
	}
	assert.Equal(t, 1, retrieved)
}

func TestSectionWriter_DirectResets(t *testing.T) {
	client := writerClient(func(int, llm.CompletionRequest) string { return "APPROVED" })
	w := newWriter(t, client, nil, 1)

	ws, err := w.Write(paperflow.NewContext(context.Background()), &WritingState{
		Sections:            sectionsOf(1),
		WrittenSections:     []SectionState{{Content: "stale", Completed: true}, {Content: "stale"}},
		CurrentSectionIndex: 1,
		RetrievedDocs:       []docstore.Document{{ID: "old"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, ws.CurrentSectionIndex)
	require.Len(t, ws.WrittenSections, 1)
	assert.Empty(t, ws.RetrievedDocs)
}

func TestSectionWriter_NoSections(t *testing.T) {
	client := writerClient(func(int, llm.CompletionRequest) string { return "APPROVED" })
	w := newWriter(t, client, nil, 1)

	ws := &WritingState{Outline: "no numbers here"}
	_, err := w.Write(paperflow.NewContext(context.Background()), ws)
	var verr *perrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"no numbers here"}, ws.Dropped)
	assert.Zero(t, client.CallCount())
}
