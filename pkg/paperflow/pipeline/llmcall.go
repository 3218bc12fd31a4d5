package pipeline

import (
	"context"
	"strings"

	perrors "github.com/randalmurphal/paperflow/pkg/paperflow/errors"
	"github.com/randalmurphal/paperflow/pkg/paperflow/event"
	"github.com/randalmurphal/paperflow/pkg/paperflow/llm"
)

// complete runs req under the retry policy and returns the content with
// think blocks removed.
func complete(ctx context.Context, client llm.Client, retry perrors.RetryConfig, req llm.CompletionRequest) (string, error) {
	resp, err := perrors.Do(ctx, retry, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return client.Complete(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(llm.StripThink(resp.Content)), nil
}

// streamTo runs req as a stream and publishes every piece under stage:
// reasoning as thinking, content as generating. Only opening the stream is
// retried; a stream that fails midway fails the call.
func streamTo(ctx context.Context, client llm.Client, retry perrors.RetryConfig, req llm.CompletionRequest, stage StageID, events event.Publisher) (string, error) {
	ch, err := perrors.Do(ctx, retry, func(ctx context.Context) (<-chan llm.StreamChunk, error) {
		return client.Stream(ctx, req)
	})
	if err != nil {
		return "", err
	}

	res, err := llm.Collect(ctx, ch, func(piece llm.Tagged) {
		status := event.StatusGenerating
		if piece.Kind == llm.KindReasoning {
			status = event.StatusThinking
		}
		events.Publish(event.New(string(stage), status, piece.Text))
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Content), nil
}
