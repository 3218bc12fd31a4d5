package paperflow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/randalmurphal/paperflow/pkg/paperflow/checkpoint"
	"github.com/randalmurphal/paperflow/pkg/paperflow/event"
	"github.com/randalmurphal/paperflow/pkg/paperflow/gate"
	"github.com/randalmurphal/paperflow/pkg/paperflow/observability"
)

// Context is the context.Context handed to nodes, extended with run
// services and metadata. It is immutable; the executor derives a copy per
// node.
type Context interface {
	context.Context

	// Logger never returns nil. Inside a node it carries run_id, node_id
	// and attempt.
	Logger() *slog.Logger

	// Events never returns nil; it defaults to event.Discard.
	Events() event.Publisher

	// Gate returns the run's suspension gate, or nil.
	Gate() *gate.Gate

	// Checkpointer returns the checkpoint store, or nil.
	Checkpointer() checkpoint.Store

	RunID() string

	// NodeID is empty outside a node.
	NodeID() string

	// Attempt starts at 1.
	Attempt() int
}

type executionContext struct {
	context.Context

	base         *slog.Logger // logger before node tagging
	logger       *slog.Logger
	events       event.Publisher
	gate         *gate.Gate
	checkpointer checkpoint.Store
	runID        string
	nodeID       string
	attempt      int
}

func (c *executionContext) Logger() *slog.Logger           { return c.logger }
func (c *executionContext) Events() event.Publisher        { return c.events }
func (c *executionContext) Gate() *gate.Gate               { return c.gate }
func (c *executionContext) Checkpointer() checkpoint.Store { return c.checkpointer }
func (c *executionContext) RunID() string                  { return c.runID }
func (c *executionContext) NodeID() string                 { return c.nodeID }
func (c *executionContext) Attempt() int                   { return c.attempt }

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEvents sets the progress event publisher.
func WithEvents(p event.Publisher) ContextOption {
	return func(c *executionContext) {
		if p != nil {
			c.events = p
		}
	}
}

// WithGate sets the run's suspension gate.
func WithGate(g *gate.Gate) ContextOption {
	return func(c *executionContext) {
		c.gate = g
	}
}

// WithCheckpointer exposes a checkpoint store to nodes.
func WithCheckpointer(store checkpoint.Store) ContextOption {
	return func(c *executionContext) {
		c.checkpointer = store
	}
}

// WithContextRunID sets the run ID used for logging. Checkpointing takes
// its run ID from WithRunID.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// NewContext wraps ctx. Without WithContextRunID a UUID is generated.
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		events:  event.Discard,
		runID:   uuid.NewString(),
		attempt: 1,
	}
	for _, opt := range opts {
		opt(ec)
	}
	ec.base = ec.logger
	return ec
}

// Derive returns a child Context that shares parent's services but uses
// ctx for cancellation and values. Sub-graphs use it to run inside a node.
func Derive(parent Context, ctx context.Context) Context {
	if ec, ok := parent.(*executionContext); ok {
		cp := *ec
		cp.Context = ctx
		return &cp
	}
	return NewContext(ctx,
		WithLogger(parent.Logger()),
		WithEvents(parent.Events()),
		WithGate(parent.Gate()),
		WithCheckpointer(parent.Checkpointer()),
		WithContextRunID(parent.RunID()),
	)
}

func (c *executionContext) withNodeID(nodeID string) *executionContext {
	cp := *c
	cp.nodeID = nodeID
	cp.logger = observability.EnrichLogger(c.base, c.runID, nodeID, c.attempt)
	return &cp
}
