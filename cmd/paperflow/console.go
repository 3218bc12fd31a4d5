package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/randalmurphal/paperflow/pkg/paperflow/event"
	"github.com/randalmurphal/paperflow/pkg/paperflow/gate"
)

// console prints a run's events and answers its query review from input.
type console struct {
	out      io.Writer
	lines    <-chan string
	registry *gate.Registry

	// autoApprove accepts every proposal without reading input.
	autoApprove  bool
	showThinking bool

	midLine bool
}

// newConsole starts reading in line by line. The reader goroutine exits
// at EOF.
func newConsole(in io.Reader, out io.Writer, registry *gate.Registry) *console {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return &console{out: out, lines: lines, registry: registry}
}

// follow prints events until the channel is closed or ctx is done.
func (c *console) follow(ctx context.Context, runID string, events *event.Channel) error {
	for evt := range events.All(ctx) {
		c.print(evt)
		if evt.Status == event.StatusUserReview {
			if err := c.review(ctx, runID, evt); err != nil {
				return err
			}
		}
	}
	c.endLine()
	return ctx.Err()
}

func (c *console) print(evt event.Event) {
	switch evt.Status {
	case event.StatusGenerating:
		fmt.Fprint(c.out, evt.Payload)
		c.midLine = true
		return
	case event.StatusThinking:
		if c.showThinking {
			fmt.Fprint(c.out, evt.Payload)
			c.midLine = true
		}
		return
	}

	c.endLine()
	switch evt.Status {
	case event.StatusInitializing:
		fmt.Fprintf(c.out, "==> %s\n", evt.Stage)
	case event.StatusProcessing:
		fmt.Fprintf(c.out, "    %v\n", evt.Payload)
	case event.StatusUserReview:
		fmt.Fprintf(c.out, "\nProposed search:\n  %v\n", evt.Payload)
	case event.StatusCompleted:
		if s, ok := evt.Payload.(string); ok && strings.Contains(s, "\n") {
			fmt.Fprintf(c.out, "<== %s done\n", evt.Stage)
			return
		}
		if evt.Payload != nil {
			fmt.Fprintf(c.out, "<== %s: %v\n", evt.Stage, evt.Payload)
			return
		}
		fmt.Fprintf(c.out, "<== %s done\n", evt.Stage)
	case event.StatusError:
		fmt.Fprintf(c.out, "!!! %s failed: %v\n", evt.Stage, evt.Payload)
	}
}

func (c *console) endLine() {
	if c.midLine {
		fmt.Fprintln(c.out)
		c.midLine = false
	}
}

// review delivers the reviewed query to the run's gate. An empty line (or
// closed input) accepts the proposal unchanged.
func (c *console) review(ctx context.Context, runID string, evt event.Event) error {
	proposal, _ := evt.Payload.(string)
	value := proposal

	if !c.autoApprove {
		fmt.Fprint(c.out, "Edit the query or press Enter to accept: ")
		select {
		case line, ok := <-c.lines:
			if ok && strings.TrimSpace(line) != "" {
				value = line
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := c.registry.Deliver(ctx, gate.Approve(runID, value).WithSender("console"))
	if err != nil {
		return fmt.Errorf("deliver review: %w", err)
	}
	return nil
}
