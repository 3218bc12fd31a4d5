package paperflow

import (
	"log/slog"

	"github.com/randalmurphal/paperflow/pkg/paperflow/checkpoint"
	"github.com/randalmurphal/paperflow/pkg/paperflow/observability"
)

type runConfig struct {
	maxIterations int

	checkpointStore        checkpoint.Store
	runID                  string
	sequence               int
	checkpointFailureFatal bool

	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool

	// resume only
	replayNode    bool
	validateState func(any) error
}

func defaultRunConfig() runConfig {
	return runConfig{
		maxIterations: 1000,
		metrics:       observability.NoopMetrics{},
		spans:         observability.NoopSpanManager{},
	}
}

// RunOption configures Run and Resume.
type RunOption func(*runConfig)

// WithMaxIterations bounds the number of node executions in one call.
// Default 1000. Non-positive values are ignored.
func WithMaxIterations(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithCheckpointing saves the state to store after every node. It needs
// WithRunID.
func WithCheckpointing(store checkpoint.Store) RunOption {
	return func(c *runConfig) {
		c.checkpointStore = store
	}
}

// WithRunID sets the run ID under which checkpoints are stored.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithCheckpointFailureFatal aborts the run when a checkpoint cannot be
// saved. By default the failure is logged and the run continues.
func WithCheckpointFailureFatal(fatal bool) RunOption {
	return func(c *runConfig) {
		c.checkpointFailureFatal = fatal
	}
}

// WithObservabilityLogger enables run and node lifecycle logging.
func WithObservabilityLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics records node, run and checkpoint metrics.
func WithMetrics(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing wraps the run and every node in spans.
func WithTracing(spans observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if spans != nil {
			c.spans = spans
			c.tracingEnabled = true
		}
	}
}

// WithReplayNode makes Resume re-run the checkpointed node instead of
// continuing after it.
func WithReplayNode() RunOption {
	return func(c *runConfig) {
		c.replayNode = true
	}
}

// WithStateValidation checks the restored state before Resume continues.
func WithStateValidation(fn func(state any) error) RunOption {
	return func(c *runConfig) {
		c.validateState = fn
	}
}
