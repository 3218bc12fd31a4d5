package event

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle marker carried by an Event.
type Status string

// Event statuses.
const (
	StatusInitializing Status = "initializing"
	StatusProcessing   Status = "processing"
	StatusThinking     Status = "thinking"
	StatusGenerating   Status = "generating"
	StatusUserReview   Status = "user_review"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInitializing, StatusProcessing, StatusThinking, StatusGenerating,
		StatusUserReview, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s ends a stage (completed or error).
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Event is one progress notification. Treat it as immutable once published.
type Event struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	Stage     string    `json:"stage"`
	Status    Status    `json:"status"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates an Event with a fresh ID and the current time.
func New(stage string, status Status, payload any) Event {
	return Event{
		ID:        uuid.New().String(),
		Stage:     stage,
		Status:    status,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Publisher accepts events. Publish must not block.
type Publisher interface {
	// Publish enqueues evt and reports whether it was accepted.
	Publish(evt Event) bool
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event) bool

// Publish calls f(evt).
func (f PublisherFunc) Publish(evt Event) bool {
	return f(evt)
}

// Discard is a Publisher that drops everything.
var Discard Publisher = PublisherFunc(func(Event) bool { return true })
