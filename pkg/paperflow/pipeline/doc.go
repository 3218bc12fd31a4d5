// Package pipeline is the research-report pipeline built on the paperflow
// engine.
//
// A run moves through six stages in a fixed order:
//
//	search -> read -> analyze -> writing_director -> section_writing -> report
//
// Each Stage mutates a shared *RunState and reports progress on an
// event.Publisher. A stage never returns its own failure to the engine:
// the observe decorator records it in RunState.Errors and publishes an
// error event, and the Router (Next) sends the run to the failed node on
// its next evaluation.
//
// Section writing is itself a small graph over WritingState (direct,
// write, retrieve) that loops until every outlined section is approved by
// the writer or has exhausted its retrieval rounds.
//
// Pipeline.Start launches a run and returns a *Run whose Events channel is
// closed after the terminal event and whose Gate receives the human
// approval of the search query.
package pipeline
