package gate

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Signal names understood by Registry.Deliver.
const (
	SignalApprove = "approve"
	SignalCancel  = "cancel"
)

// Status represents the delivery state of a signal.
type Status string

// Signal status constants.
const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusRejected  Status = "rejected"
)

// Signal is an external submission aimed at one run's gate.
type Signal struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TargetID string `json:"target_id"`
	Value    string `json:"value,omitempty"`
	SenderID string `json:"sender_id,omitempty"`
	Status   Status `json:"status"`

	SentAt      time.Time  `json:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// NewSignal creates a pending signal for the run targetID.
func NewSignal(name, targetID, value string) *Signal {
	return &Signal{
		ID:       fmt.Sprintf("sig-%s", uuid.New().String()[:8]),
		Name:     name,
		TargetID: targetID,
		Value:    value,
		Status:   StatusPending,
		SentAt:   time.Now(),
	}
}

// Approve is shorthand for an approve signal carrying value.
func Approve(targetID, value string) *Signal {
	return NewSignal(SignalApprove, targetID, value)
}

// WithSender sets the sender ID on the signal.
func (s *Signal) WithSender(senderID string) *Signal {
	s.SenderID = senderID
	return s
}

func (s *Signal) clone() *Signal {
	c := *s
	if s.DeliveredAt != nil {
		t := *s.DeliveredAt
		c.DeliveredAt = &t
	}
	return &c
}
