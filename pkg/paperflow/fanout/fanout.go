// Package fanout runs independent sub-tasks concurrently and joins them.
//
// Map waits for every task (gather semantics, not first-completed) and
// returns results positioned by input index, so the merged output is
// identical no matter which task finishes first.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config controls a fan-out.
type Config struct {
	// MaxConcurrency limits how many tasks run at once. 0 means unlimited.
	MaxConcurrency int

	// Timeout bounds the whole fan-out. 0 means no limit.
	Timeout time.Duration

	// FailFast cancels the context handed to the remaining tasks as soon as
	// one fails. The join still waits for all of them to return.
	FailFast bool
}

// TaskError is the failure of the task at Index.
type TaskError struct {
	Index int
	Err   error
}

// Error implements the error interface.
func (e TaskError) Error() string {
	return fmt.Sprintf("task %d: %v", e.Index, e.Err)
}

// Unwrap returns the task's error.
func (e TaskError) Unwrap() error {
	return e.Err
}

// Error aggregates every failed task of one fan-out, ordered by index.
type Error struct {
	Failures []TaskError
}

// First returns the lowest-index failure that is not a cancellation caused
// by a sibling, falling back to the lowest-index failure.
func (e *Error) First() TaskError {
	for _, f := range e.Failures {
		if !errors.Is(f.Err, context.Canceled) {
			return f
		}
	}
	return e.Failures[0]
}

// Error implements the error interface.
func (e *Error) Error() string {
	first := e.First()
	if len(e.Failures) == 1 {
		return first.Error()
	}
	return fmt.Sprintf("%s (and %d more failed)", first.Error(), len(e.Failures)-1)
}

// Unwrap exposes every task error to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// PanicError is recorded when a task panics.
type PanicError struct {
	Value any
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Map applies fn to every input concurrently and returns the results in
// input order. If any task fails, the returned error is an *Error and the
// results slice holds the zero value at each failed index.
func Map[T, R any](ctx context.Context, cfg Config, inputs []T, fn func(ctx context.Context, i int, in T) (R, error)) ([]R, error) {
	results := make([]R, len(inputs))
	if len(inputs) == 0 {
		return results, nil
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	g, gctx := new(errgroup.Group), ctx
	if cfg.FailFast {
		g, gctx = errgroup.WithContext(ctx)
	}
	if cfg.MaxConcurrency > 0 {
		g.SetLimit(cfg.MaxConcurrency)
	}

	errs := make([]error, len(inputs))
	for i, in := range inputs {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Value: r, Stack: string(debug.Stack())}
					errs[i] = err
				}
			}()

			if err := gctx.Err(); err != nil {
				errs[i] = err
				return err
			}

			r, err := fn(gctx, i, in)
			if err != nil {
				errs[i] = err
				return err
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	var failures []TaskError
	for i, err := range errs {
		if err != nil {
			failures = append(failures, TaskError{Index: i, Err: err})
		}
	}
	if len(failures) > 0 {
		return results, &Error{Failures: failures}
	}
	return results, nil
}
