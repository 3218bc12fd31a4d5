package errors

import "fmt"

// CollaboratorError is a failure reported by an external collaborator
// (text generation, search, document store). Transient failures are retried;
// the rest abort the stage.
type CollaboratorError struct {
	Collaborator string
	Op           string
	Transient    bool
	Err          error
}

// Error implements the error interface.
func (e *CollaboratorError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s %s (%s): %v", e.Collaborator, e.Op, kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// TransientFailure returns a retryable CollaboratorError.
func TransientFailure(collaborator, op string, err error) *CollaboratorError {
	return &CollaboratorError{Collaborator: collaborator, Op: op, Transient: true, Err: err}
}

// FatalFailure returns a non-retryable CollaboratorError.
func FatalFailure(collaborator, op string, err error) *CollaboratorError {
	return &CollaboratorError{Collaborator: collaborator, Op: op, Err: err}
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("HTTP %d at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// JSONParseError indicates collaborator output that does not match the
// expected structure.
type JSONParseError struct {
	Input   string
	Message string
}

// Error implements the error interface.
func (e *JSONParseError) Error() string {
	return fmt.Sprintf("JSON parse error: %s", e.Message)
}

// ValidationError indicates a result that is well-formed but unusable,
// such as an empty search result set.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// TimeoutError indicates an operation timed out.
type TimeoutError struct {
	Operation string
	Duration  string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}

// HumanInputError indicates the gate was resolved with empty or
// unparseable input.
type HumanInputError struct {
	Input   string
	Message string
}

// Error implements the error interface.
func (e *HumanInputError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("invalid human input: %s", e.Message)
	}
	return fmt.Sprintf("invalid human input %q: %s", e.Input, e.Message)
}
