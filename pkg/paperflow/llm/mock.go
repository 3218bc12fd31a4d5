package llm

import (
	"context"
	"sync"
	"time"
)

// MockClient is a scripted Client for tests. It is safe for concurrent use.
type MockClient struct {
	mu           sync.Mutex
	response     string
	responses    []string
	next         int
	err          error
	completeFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	chunks       []string
	delay        time.Duration

	// Calls records every request in arrival order.
	Calls []CompletionRequest
}

// NewMockClient returns a client that always answers with response.
func NewMockClient(response string) *MockClient {
	return &MockClient{response: response}
}

// WithResponses answers with each response in turn, cycling at the end.
func (m *MockClient) WithResponses(responses ...string) *MockClient {
	m.responses = responses
	return m
}

// WithError makes every call fail with err.
func (m *MockClient) WithError(err error) *MockClient {
	m.err = err
	return m
}

// WithCompleteFunc delegates every call to fn.
func (m *MockClient) WithCompleteFunc(fn func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)) *MockClient {
	m.completeFunc = fn
	return m
}

// WithStreamChunks makes Stream emit chunks one by one instead of a single
// chunk holding the whole response.
func (m *MockClient) WithStreamChunks(chunks ...string) *MockClient {
	m.chunks = chunks
	return m
}

// WithDelay makes each call wait d (or until ctx is done) before answering.
func (m *MockClient) WithDelay(d time.Duration) *MockClient {
	m.delay = d
	return m
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	content, fn, err := m.record(req)

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, NewError("complete", ctx.Err(), false)
		case <-time.After(m.delay):
		}
	}
	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	return &CompletionResponse{
		Content:      content,
		FinishReason: "stop",
		Model:        "mock",
		Usage:        TokenUsage{InputTokens: 10, OutputTokens: 10, TotalTokens: 20},
	}, nil
}

// Stream implements Client.
func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	chunks := m.chunks
	m.mu.Unlock()
	if len(chunks) == 0 {
		chunks = []string{resp.Content}
	}

	ch := make(chan StreamChunk, len(chunks))
	go func() {
		defer close(ch)
		for i, text := range chunks {
			chunk := StreamChunk{Content: text}
			if i == len(chunks)-1 {
				chunk.Done = true
				usage := resp.Usage
				chunk.Usage = &usage
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (m *MockClient) record(req CompletionRequest) (string, func(context.Context, CompletionRequest) (*CompletionResponse, error), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	content := m.response
	if len(m.responses) > 0 {
		content = m.responses[m.next%len(m.responses)]
		m.next++
	}
	return content, m.completeFunc, m.err
}

// CallCount returns the number of calls made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or nil.
func (m *MockClient) LastCall() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	last := m.Calls[len(m.Calls)-1]
	return &last
}

// Reset clears recorded calls and rewinds WithResponses.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.next = 0
}
