package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited paces calls to an underlying Client.
type RateLimited struct {
	client  Client
	limiter *rate.Limiter
}

// NewRateLimited allows rps calls per second with the given burst.
// A non-positive rps disables limiting.
func NewRateLimited(client Client, rps float64, burst int) *RateLimited {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{client: client, limiter: rate.NewLimiter(limit, burst)}
}

// Complete implements Client.
func (r *RateLimited) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, NewError("complete", err, false)
	}
	return r.client.Complete(ctx, req)
}

// Stream implements Client.
func (r *RateLimited) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, NewError("stream", err, false)
	}
	return r.client.Stream(ctx, req)
}
