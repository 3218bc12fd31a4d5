package llm

import "fmt"

// Error is a failed text-generation call.
type Error struct {
	Op        string
	Err       error
	Retryable bool
}

// NewError creates an Error for op.
func NewError(op string, err error, retryable bool) *Error {
	return &Error{Op: op, Err: err, Retryable: retryable}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether another attempt may succeed.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}
