/*
Package paperflow is a directed-graph workflow engine for multi-stage
research pipelines.

A graph is built once, compiled, and then run any number of times with a
state value that flows from node to node:

	type State struct {
	    Query   string
	    Results []string
	}

	graph := paperflow.NewGraph[*State]().
	    AddNode("search", search).
	    AddNode("summarise", summarise).
	    AddEdge("search", "summarise").
	    AddEdge("summarise", paperflow.END).
	    SetEntry("search")

	compiled, err := graph.Compile()
	if err != nil {
	    return err
	}
	final, err := compiled.Run(paperflow.NewContext(ctx), &State{Query: "diffusion"})

# Conditional routing

A conditional edge replaces the fixed successor of a node with a router
evaluated against the state after the node ran:

	graph.AddConditionalEdge("review", func(ctx paperflow.Context, s *State) string {
	    if s.Approved {
	        return "publish"
	    }
	    return "revise"
	})

Routers may loop back to earlier nodes. WithMaxIterations bounds the loop.

# Run services

NewContext carries the services a node may need besides its state: a
logger, an event publisher (WithEvents), a suspension gate (WithGate) and a
checkpoint store. The executor derives a per-node Context whose logger is
tagged with run_id, node_id and attempt.

# Checkpoints

With WithCheckpointing and WithRunID the executor saves the JSON-encoded
state after every node. Resume loads the latest checkpoint of a run and
continues from the node that would have run next.

# Errors

Run returns the state at the point of failure together with one of
NodeError, PanicError, CancellationError, RouterError or MaxIterationsError.
Nodes that want failures to travel as data (the research pipeline records
them into its state) return nil and let a router divert the run.

Sub-packages provide the pieces built on top: event (progress event
channel), gate (single-resolution suspension), fanout (ordered parallel
map), pipeline (the research-report stages) and the collaborator adapters
llm, docstore and arxiv.
*/
package paperflow
