package llm_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/paperflow/pkg/paperflow/llm"
)

func TestMockClient_FixedResponse(t *testing.T) {
	mock := llm.NewMockClient("three papers found")

	resp, err := mock.Complete(context.Background(), llm.Prompt("", "summarise"))

	require.NoError(t, err)
	assert.Equal(t, "three papers found", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestMockClient_SequentialResponses(t *testing.T) {
	mock := llm.NewMockClient("").WithResponses("first", "second")

	for _, want := range []string{"first", "second", "first"} {
		resp, err := mock.Complete(context.Background(), llm.CompletionRequest{})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Content)
	}
}

func TestMockClient_WithError(t *testing.T) {
	expectedErr := errors.New("backend down")
	mock := llm.NewMockClient("").WithError(expectedErr)

	_, err := mock.Complete(context.Background(), llm.CompletionRequest{})
	assert.Equal(t, expectedErr, err)

	_, err = mock.Stream(context.Background(), llm.CompletionRequest{})
	assert.Equal(t, expectedErr, err)
}

func TestMockClient_CallTracking(t *testing.T) {
	mock := llm.NewMockClient("ok")

	assert.Nil(t, mock.LastCall())

	_, _ = mock.Complete(context.Background(), llm.Prompt("sys", "first question"))
	_, _ = mock.Complete(context.Background(), llm.Prompt("sys", "second question"))

	assert.Equal(t, 2, mock.CallCount())
	require.Len(t, mock.Calls, 2)
	assert.Equal(t, "first question", mock.Calls[0].UserText())

	last := mock.LastCall()
	require.NotNil(t, last)
	assert.Equal(t, "second question", last.UserText())
	assert.Equal(t, "sys", last.SystemPrompt)
}

func TestMockClient_Reset(t *testing.T) {
	mock := llm.NewMockClient("").WithResponses("a", "b", "c")

	_, _ = mock.Complete(context.Background(), llm.CompletionRequest{})
	_, _ = mock.Complete(context.Background(), llm.CompletionRequest{})
	mock.Reset()

	assert.Equal(t, 0, mock.CallCount())
	assert.Empty(t, mock.Calls)

	resp, err := mock.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.Content)
}

func TestMockClient_CustomCompleteFunc(t *testing.T) {
	mock := llm.NewMockClient("").WithCompleteFunc(func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: "echo: " + req.UserText()}, nil
	})

	resp, err := mock.Complete(context.Background(), llm.Prompt("", "test"))
	require.NoError(t, err)
	assert.Equal(t, "echo: test", resp.Content)
	assert.Equal(t, 1, mock.CallCount())
}

func TestMockClient_Stream(t *testing.T) {
	t.Run("single chunk by default", func(t *testing.T) {
		mock := llm.NewMockClient("whole answer")

		ch, err := mock.Stream(context.Background(), llm.CompletionRequest{})
		require.NoError(t, err)

		var chunks []llm.StreamChunk
		for c := range ch {
			chunks = append(chunks, c)
		}
		require.Len(t, chunks, 1)
		assert.Equal(t, "whole answer", chunks[0].Content)
		assert.True(t, chunks[0].Done)
		assert.NotNil(t, chunks[0].Usage)
	})

	t.Run("scripted chunks", func(t *testing.T) {
		mock := llm.NewMockClient("").WithStreamChunks("<think>", "hmm", "</think>", "done")

		ch, err := mock.Stream(context.Background(), llm.CompletionRequest{})
		require.NoError(t, err)

		var got []string
		for c := range ch {
			got = append(got, c.Content)
		}
		assert.Equal(t, []string{"<think>", "hmm", "</think>", "done"}, got)
	})
}

func TestMockClient_DelayHonoursContext(t *testing.T) {
	mock := llm.NewMockClient("late").WithDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := mock.Complete(ctx, llm.CompletionRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockClient_ConcurrentCalls(t *testing.T) {
	mock := llm.NewMockClient("ok")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = mock.Complete(context.Background(), llm.CompletionRequest{})
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, mock.CallCount())
}
