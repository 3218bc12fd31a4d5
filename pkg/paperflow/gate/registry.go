package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry errors.
var (
	ErrUnknownRun      = errors.New("no gate registered for run")
	ErrAlreadySettled  = errors.New("gate already settled")
	ErrUnknownSignal   = errors.New("unknown signal name")
	ErrDuplicateGate   = errors.New("gate already registered for run")
	ErrMissingTargetID = errors.New("target ID is required")
)

// Registry routes external signals to the gate of the run they target.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	gates   map[string]*Gate
	history map[string][]*Signal
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		gates:   make(map[string]*Gate),
		history: make(map[string][]*Signal),
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Register associates g with runID.
func (r *Registry) Register(runID string, g *Gate) error {
	if runID == "" {
		return ErrMissingTargetID
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.gates[runID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateGate, runID)
	}
	r.gates[runID] = g
	return nil
}

// Get returns the gate for runID.
func (r *Registry) Get(runID string) (*Gate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gates[runID]
	return g, ok
}

// Remove forgets runID. Signal history is kept.
func (r *Registry) Remove(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.gates, runID)
}

// Runs returns the IDs of runs with a registered gate.
func (r *Registry) Runs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.gates))
	for id := range r.gates {
		ids = append(ids, id)
	}
	return ids
}

// Deliver applies sig to its target gate. The signal is recorded with its
// final status whether or not delivery succeeded.
func (r *Registry) Deliver(_ context.Context, sig *Signal) error {
	if sig.TargetID == "" {
		return ErrMissingTargetID
	}

	err := r.apply(sig)

	now := time.Now()
	sig.DeliveredAt = &now
	if err != nil {
		sig.Status = StatusRejected
		sig.Error = err.Error()
		r.logger.Warn("signal rejected",
			slog.String("signal_id", sig.ID),
			slog.String("signal_name", sig.Name),
			slog.String("target_id", sig.TargetID),
			slog.String("error", err.Error()),
		)
	} else {
		sig.Status = StatusDelivered
		r.logger.Debug("signal delivered",
			slog.String("signal_id", sig.ID),
			slog.String("signal_name", sig.Name),
			slog.String("target_id", sig.TargetID),
		)
	}

	r.mu.Lock()
	r.history[sig.TargetID] = append(r.history[sig.TargetID], sig.clone())
	r.mu.Unlock()

	return err
}

func (r *Registry) apply(sig *Signal) error {
	g, ok := r.Get(sig.TargetID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRun, sig.TargetID)
	}

	var settled bool
	switch sig.Name {
	case SignalApprove:
		settled = g.Resolve(sig.Value)
	case SignalCancel:
		var cause error
		if sig.Value != "" {
			cause = errors.New(sig.Value)
		}
		settled = g.Cancel(cause)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSignal, sig.Name)
	}

	if !settled {
		return ErrAlreadySettled
	}
	return nil
}

// History returns the signals delivered (or rejected) for runID, oldest first.
func (r *Registry) History(runID string) []*Signal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	signals := r.history[runID]
	out := make([]*Signal, len(signals))
	for i, s := range signals {
		out[i] = s.clone()
	}
	return out
}
