// Package llm is the text-generation collaborator of the pipeline.
//
// Client is the only thing stages depend on. ClaudeCLI drives the claude
// binary, MockClient backs tests, and RateLimited paces any Client. Streamed
// output can be split into reasoning and final content with ThinkSplitter.
package llm

import "context"

// Client generates text. Implementations must be safe for concurrent use;
// fan-out stages call Complete from several goroutines at once.
type Client interface {
	// Complete runs a request to completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream runs a request and delivers output incrementally. The channel
	// is closed after a chunk with Done or Error set.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
}
