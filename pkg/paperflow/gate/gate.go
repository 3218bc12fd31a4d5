// Package gate provides the human-in-the-loop suspension point of a run.
//
// A Gate is resolved exactly once, either with a value supplied by an
// external actor (Resolve) or with a cancellation (Cancel). Any number of
// Wait calls, before or after resolution, observe the same outcome.
//
// External submissions arrive as Signals and are routed to the right run's
// gate by a Registry.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCancelled is returned by Wait when the gate was cancelled instead of resolved.
var ErrCancelled = errors.New("gate cancelled")

// Gate is a one-shot, externally resolvable wait point.
type Gate struct {
	mu         sync.Mutex
	done       chan struct{}
	settled    bool
	value      string
	err        error
	resolvedAt time.Time

	name   string
	logger *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithName labels the gate in log output (usually the run ID).
func WithName(name string) Option {
	return func(g *Gate) { g.name = name }
}

// WithLogger sets the logger used to report duplicate resolutions.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New creates an unresolved Gate.
func New(opts ...Option) *Gate {
	g := &Gate{
		done:   make(chan struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Wait blocks until the gate is settled or ctx is done.
// It returns the resolved value, or an error wrapping ErrCancelled if the
// gate was cancelled, or ctx.Err().
func (g *Gate) Wait(ctx context.Context) (string, error) {
	select {
	case <-g.done:
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.value, g.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Done returns a channel closed once the gate is settled.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Resolve completes the gate with value. Only the first call wins; later
// calls are logged and return false.
func (g *Gate) Resolve(value string) bool {
	if g.settle(value, nil) {
		return true
	}
	g.logger.Warn("gate already settled, ignoring duplicate resolve",
		slog.String("gate", g.name),
	)
	return false
}

// Cancel settles the gate with a cancellation. cause is optional.
// Cancelling an already settled gate is a no-op.
func (g *Gate) Cancel(cause error) bool {
	err := ErrCancelled
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrCancelled, cause)
	}
	if g.settle("", err) {
		return true
	}
	g.logger.Debug("gate already settled, ignoring cancel", slog.String("gate", g.name))
	return false
}

// Settled reports whether Resolve or Cancel has taken effect.
func (g *Gate) Settled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.settled
}

// ResolvedAt returns when the gate was settled, or the zero time.
func (g *Gate) ResolvedAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolvedAt
}

func (g *Gate) settle(value string, err error) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.settled {
		return false
	}
	g.settled = true
	g.value = value
	g.err = err
	g.resolvedAt = time.Now()
	close(g.done)
	return true
}
