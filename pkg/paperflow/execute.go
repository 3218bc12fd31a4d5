package paperflow

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/paperflow/pkg/paperflow/checkpoint"
	"github.com/randalmurphal/paperflow/pkg/paperflow/observability"
)

// Run executes the graph from its entry point until a node routes to END.
//
// It returns the final state, or the state at the point of failure
// together with the error.
func (cg *CompiledGraph[S]) Run(ctx Context, state S, opts ...RunOption) (S, error) {
	if ctx == nil {
		return state, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.checkpointStore != nil && cfg.runID == "" {
		return state, ErrRunIDRequired
	}

	return cg.run(ctx, state, cg.entryPoint, &cfg)
}

// run wraps the node loop in run-level logging, metrics and tracing.
func (cg *CompiledGraph[S]) run(ctx Context, state S, startNode string, cfg *runConfig) (result S, runErr error) {
	runID := cfg.runID
	if runID == "" {
		runID = ctx.RunID()
	}

	elapsed := observability.TimedOperation()
	start := time.Now()
	observability.LogRunStart(cfg.logger, runID)

	var tracingCtx context.Context = ctx
	if cfg.tracingEnabled {
		var runSpan trace.Span
		tracingCtx, runSpan = cfg.spans.StartRunSpan(ctx, cg.name, runID)
		defer func() {
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	result, nodeCount, runErr := cg.loop(tracingCtx, ctx, state, startNode, cfg)

	cfg.metrics.RecordRun(ctx, runOutcome(runErr), time.Since(start))
	if runErr != nil {
		observability.LogRunError(cfg.logger, runID, runErr, elapsed(), LastNode(runErr))
	} else {
		observability.LogRunComplete(cfg.logger, runID, elapsed(), nodeCount)
	}
	return result, runErr
}

func runOutcome(err error) string {
	if err == nil {
		return "completed"
	}
	if _, ok := err.(*CancellationError); ok {
		return "cancelled"
	}
	return "failed"
}

// loop runs nodes starting at startNode. tracingCtx carries span context;
// pctx is the paperflow Context handed to nodes.
func (cg *CompiledGraph[S]) loop(tracingCtx context.Context, pctx Context, state S, startNode string, cfg *runConfig) (S, int, error) {
	current := startNode
	iterations := 0
	nodeCount := 0

	for current != END {
		iterations++
		if iterations > cfg.maxIterations {
			return state, nodeCount, &MaxIterationsError{
				Max:        cfg.maxIterations,
				LastNodeID: current,
				State:      state,
			}
		}

		select {
		case <-pctx.Done():
			return state, nodeCount, &CancellationError{
				NodeID: current,
				State:  state,
				Cause:  pctx.Err(),
			}
		default:
		}

		observability.LogNodeStart(cfg.logger, current)

		nodeTracingCtx := tracingCtx
		var nodeSpan trace.Span
		if cfg.tracingEnabled {
			nodeTracingCtx, nodeSpan = cfg.spans.StartNodeSpan(tracingCtx, current)
		}

		nodeStart := time.Now()
		var nodeErr error
		state, nodeErr = cg.executeNode(pctx, current, state)
		nodeDuration := time.Since(nodeStart)

		// A node that returned because ctx ended is reported as cancellation.
		if nodeErr != nil && pctx.Err() != nil {
			if _, isPanic := nodeErr.(*PanicError); !isPanic {
				nodeErr = &CancellationError{
					NodeID:       current,
					State:        state,
					Cause:        pctx.Err(),
					WasExecuting: true,
				}
			}
		}

		cfg.metrics.RecordNodeExecution(nodeTracingCtx, current, nodeDuration, nodeErr)
		if cfg.tracingEnabled {
			cfg.spans.EndSpanWithError(nodeSpan, nodeErr)
		}

		if nodeErr != nil {
			observability.LogNodeError(cfg.logger, current, nodeErr)
			return state, nodeCount, nodeErr
		}
		observability.LogNodeComplete(cfg.logger, current, float64(nodeDuration.Microseconds())/1000)
		nodeCount++

		next, err := cg.nextNode(pctx, state, current)
		if err != nil {
			return state, nodeCount, err
		}

		if cfg.checkpointStore != nil {
			if err := cg.saveCheckpoint(pctx, cfg, current, state, next); err != nil {
				return state, nodeCount, err
			}
		}

		current = next
	}

	return state, nodeCount, nil
}

// saveCheckpoint persists state after nodeID ran. Failures are logged
// unless WithCheckpointFailureFatal was given.
func (cg *CompiledGraph[S]) saveCheckpoint(ctx Context, cfg *runConfig, nodeID string, state S, nextNode string) error {
	fail := func(op string, err error) error {
		if cfg.checkpointFailureFatal {
			return &CheckpointError{NodeID: nodeID, Op: op, Err: err}
		}
		observability.LogCheckpointError(cfg.logger, nodeID, op, err)
		return nil
	}

	stateBytes, err := json.Marshal(state)
	if err != nil {
		return fail("serialize", err)
	}

	cfg.sequence++
	data, err := checkpoint.New(cfg.runID, nodeID, cfg.sequence, stateBytes, nextNode).Marshal()
	if err != nil {
		return fail("marshal", err)
	}

	if err := cfg.checkpointStore.Save(ctx, cfg.runID, nodeID, data); err != nil {
		return fail("save", err)
	}

	observability.LogCheckpoint(cfg.logger, nodeID, len(data))
	cfg.metrics.RecordCheckpoint(ctx, nodeID, int64(len(data)))
	return nil
}

// executeNode runs one node with panic recovery.
func (cg *CompiledGraph[S]) executeNode(ctx Context, nodeID string, state S) (result S, err error) {
	fn, exists := cg.nodes[nodeID]
	if !exists {
		return state, &NodeError{NodeID: nodeID, Op: "lookup", Err: fmt.Errorf("node not found: %s", nodeID)}
	}

	nodeCtx := ctx
	if ec, ok := ctx.(*executionContext); ok {
		nodeCtx = ec.withNodeID(nodeID)
	}

	defer func() {
		if r := recover(); r != nil {
			result = state
			err = &PanicError{NodeID: nodeID, Value: r, Stack: string(debug.Stack())}
		}
	}()

	result, err = fn(nodeCtx, state)
	if err != nil {
		return result, &NodeError{NodeID: nodeID, Op: "execute", Err: err}
	}
	return result, nil
}

// nextNode consults the router of current, falling back to its first
// simple edge.
func (cg *CompiledGraph[S]) nextNode(ctx Context, state S, current string) (string, error) {
	if router, ok := cg.conditionalEdges[current]; ok {
		routerCtx := ctx
		if ec, ok := ctx.(*executionContext); ok {
			routerCtx = ec.withNodeID(current)
		}

		next := router(routerCtx, state)
		if next == "" {
			return "", &RouterError{FromNode: current, Returned: next, Err: ErrInvalidRouterResult}
		}
		if next != END && !cg.HasNode(next) {
			return "", &RouterError{FromNode: current, Returned: next, Err: ErrRouterTargetNotFound}
		}
		return next, nil
	}

	edges := cg.edges[current]
	if len(edges) == 0 {
		return "", &NodeError{NodeID: current, Op: "routing", Err: fmt.Errorf("no outgoing edge from node %s", current)}
	}
	return edges[0], nil
}
