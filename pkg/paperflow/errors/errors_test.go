package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyErr struct{ retry bool }

func (e flakyErr) Error() string     { return "flaky" }
func (e flakyErr) IsRetryable() bool { return e.retry }

func TestCategoryString(t *testing.T) {
	tests := []struct {
		category Category
		expected string
	}{
		{CategoryTransient, "transient"},
		{CategoryPermanent, "permanent"},
		{CategoryHumanRequired, "human_required"},
		{Category(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.category.String())
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Category
	}{
		{"nil error", nil, CategoryPermanent},
		{"transient collaborator", TransientFailure("llm", "complete", errors.New("overloaded")), CategoryTransient},
		{"fatal collaborator", FatalFailure("llm", "complete", errors.New("bad schema")), CategoryPermanent},
		{"wrapped transient", fmt.Errorf("read paper: %w", TransientFailure("llm", "complete", errors.New("x"))), CategoryTransient},
		{"HTTP 429", &HTTPError{StatusCode: 429}, CategoryTransient},
		{"HTTP 503", &HTTPError{StatusCode: 503}, CategoryTransient},
		{"HTTP 500", &HTTPError{StatusCode: 500}, CategoryTransient},
		{"HTTP 400", &HTTPError{StatusCode: 400}, CategoryPermanent},
		{"HTTP 404", &HTTPError{StatusCode: 404}, CategoryPermanent},
		{"JSON parse error", &JSONParseError{Message: "unexpected token"}, CategoryPermanent},
		{"validation error", &ValidationError{Message: "no related papers found"}, CategoryPermanent},
		{"timeout error", &TimeoutError{Operation: "api call", Duration: "30s"}, CategoryTransient},
		{"human input", &HumanInputError{Message: "empty"}, CategoryHumanRequired},
		{"categorized", &CategorizedError{Category: CategoryTransient, Err: errors.New("x")}, CategoryTransient},
		{"retryable interface", flakyErr{retry: true}, CategoryTransient},
		{"non-retryable interface", flakyErr{retry: false}, CategoryPermanent},
		{"context canceled", context.Canceled, CategoryPermanent},
		{"unknown", errors.New("unknown"), CategoryPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Categorize(tt.err))
		})
	}
}

func TestHelpers(t *testing.T) {
	assert.True(t, IsRetryable(&TimeoutError{}))
	assert.False(t, IsRetryable(&JSONParseError{}))
	assert.True(t, NeedsHuman(&HumanInputError{}))
	assert.False(t, NeedsHuman(&ValidationError{}))
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"collaborator transient", TransientFailure("arxiv", "search", errors.New("503")), "arxiv search (transient): 503"},
		{"collaborator fatal", FatalFailure("llm", "complete", errors.New("bad")), "llm complete (fatal): bad"},
		{"http with endpoint", &HTTPError{StatusCode: 502, Message: "bad gateway", Endpoint: "/api"}, "HTTP 502 at /api: bad gateway"},
		{"validation with field", &ValidationError{Field: "sections", Message: "empty"}, "validation error on sections: empty"},
		{"human input", &HumanInputError{Message: "empty reply"}, "invalid human input: empty reply"},
		{"human input with value", &HumanInputError{Input: "??", Message: "no queries"}, `invalid human input "??": no queries`},
		{"categorized", Permanent(errors.New("boom"), "read paper"), "read paper: boom (category: permanent, attempts: 0)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestCollaboratorError_Unwrap(t *testing.T) {
	cause := errors.New("root")
	err := Transient(FatalFailure("store", "query", cause), "ctx")

	assert.ErrorIs(t, err, cause)
	var collab *CollaboratorError
	require.ErrorAs(t, err, &collab)
	assert.Equal(t, "store", collab.Collaborator)
}

func fastRetry(attempts int) RetryConfig {
	return NewRetryConfig(
		WithMaxAttempts(attempts),
		WithInitialBackoff(time.Millisecond),
		WithMaxBackoff(2*time.Millisecond),
		WithJitter(0),
	)
}

func TestWithRetryContext(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		res := WithRetryContext(context.Background(), fastRetry(3), func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", TransientFailure("llm", "complete", errors.New("overloaded"))
			}
			return "ok", nil
		})

		require.NoError(t, res.Err)
		assert.Equal(t, "ok", res.Value)
		assert.Equal(t, 3, res.Attempts)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		res := WithRetryContext(context.Background(), fastRetry(5), func(context.Context) (int, error) {
			calls++
			return 0, &JSONParseError{Message: "nope"}
		})

		require.Error(t, res.Err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, CategoryPermanent, Categorize(res.Err))
		var parseErr *JSONParseError
		assert.ErrorAs(t, res.Err, &parseErr)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		var retries []int
		cfg := fastRetry(3)
		cfg.OnRetry = func(attempt int, _ error, _ time.Duration) {
			retries = append(retries, attempt)
		}

		res := WithRetryContext(context.Background(), cfg, func(context.Context) (int, error) {
			return 0, &TimeoutError{Operation: "search", Duration: "1s"}
		})

		require.Error(t, res.Err)
		assert.Equal(t, 3, res.Attempts)
		assert.Equal(t, []int{1, 2}, retries)
		assert.Contains(t, res.Err.Error(), "max retries exceeded")
	})

	t.Run("cancelled context stops before first attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		res := WithRetryContext(ctx, fastRetry(3), func(context.Context) (int, error) {
			calls++
			return 1, nil
		})

		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.Equal(t, 0, calls)
	})

	t.Run("cancel during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cfg := NewRetryConfig(WithMaxAttempts(3), WithInitialBackoff(time.Hour), WithJitter(0))

		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		res := WithRetryContext(ctx, cfg, func(context.Context) (int, error) {
			return 0, TransientFailure("llm", "complete", errors.New("busy"))
		})

		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.Equal(t, 1, res.Attempts)
	})

	t.Run("zero attempts still calls once", func(t *testing.T) {
		calls := 0
		_, err := Do(context.Background(), RetryConfig{}, func(context.Context) (int, error) {
			calls++
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestNewRetryConfig(t *testing.T) {
	cfg := NewRetryConfig(WithMaxAttempts(5), WithBackoffFactor(1.5))

	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 1.5, cfg.BackoffFactor)
	assert.Equal(t, DefaultRetry.InitialBackoff, cfg.InitialBackoff)
	assert.Equal(t, DefaultRetry.MaxBackoff, cfg.MaxBackoff)
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, time.Second, calculateBackoff(time.Second, 0))

	for range 50 {
		d := calculateBackoff(time.Second, 0.1)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}
