// Package event carries run progress to an external observer.
//
// # Overview
//
// Every run owns exactly one Channel. Stages publish Events into it while
// they execute, and a transport (the CLI console, an SSE handler, a test)
// drains it on the other side:
//
//	ch := event.NewChannel(event.WithRunID(runID))
//	go func() {
//	    for evt := range ch.All(ctx) {
//	        fmt.Println(evt.Stage, evt.Status)
//	    }
//	}()
//
// # Guarantees
//
//   - Publish never blocks the producer; the buffer is unbounded.
//   - Events come out in publish order and are never dropped.
//   - Close is idempotent and wakes any blocked reader once the backlog
//     has been drained.
//
// Events published by concurrent producers (a stage and its fan-out
// sub-tasks) are interleaved in the order Publish acquired the lock.
package event
