package event

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Channel is an unbounded multi-producer, single-consumer event queue.
// The zero value is not usable; create one with NewChannel.
type Channel struct {
	mu     sync.Mutex
	queue  []Event
	closed bool
	total  int

	notify chan struct{}
	done   chan struct{}

	runID  string
	logger *slog.Logger
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithRunID stamps every event that has no RunID with id.
func WithRunID(id string) ChannelOption {
	return func(c *Channel) { c.runID = id }
}

// WithLogger sets the logger used to report publishes after Close.
func WithLogger(logger *slog.Logger) ChannelOption {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewChannel creates an open Channel.
func NewChannel(opts ...ChannelOption) *Channel {
	c := &Channel{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Publish appends evt to the queue and returns immediately.
// It returns false if the channel has been closed; the event is discarded.
func (c *Channel) Publish(evt Event) bool {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Warn("event published after channel close",
			slog.String("run_id", c.runID),
			slog.String("stage", evt.Stage),
			slog.String("status", string(evt.Status)),
		)
		return false
	}
	if evt.RunID == "" {
		evt.RunID = c.runID
	}
	c.queue = append(c.queue, evt)
	c.total++
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

// Next returns the oldest queued event, blocking until one is available.
// ok is false once the channel is closed and drained, or when ctx is done.
func (c *Channel) Next(ctx context.Context) (evt Event, ok bool) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			evt = c.queue[0]
			c.queue[0] = Event{}
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return evt, true
		}
		closed := c.closed
		c.mu.Unlock()

		if closed {
			return Event{}, false
		}

		select {
		case <-c.notify:
		case <-c.done:
		case <-ctx.Done():
			return Event{}, false
		}
	}
}

// All returns a lazy sequence over the channel in publish order.
// The sequence ends when the channel is closed and drained or ctx is done.
func (c *Channel) All(ctx context.Context) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			evt, ok := c.Next(ctx)
			if !ok || !yield(evt) {
				return
			}
		}
	}
}

// Drain consumes the channel until it is closed and returns every event.
func (c *Channel) Drain(ctx context.Context) []Event {
	var events []Event
	for evt := range c.All(ctx) {
		events = append(events, evt)
	}
	return events
}

// Close marks the end of the stream. Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Done is closed when Close is called.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Len returns the number of events waiting to be consumed.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Published returns the number of events accepted since creation.
func (c *Channel) Published() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}
