package pipeline

import "github.com/randalmurphal/paperflow/pkg/paperflow"

// StageID names a node of the top-level graph. It is also the Stage value
// of the events a stage publishes.
type StageID string

// Node IDs of the pipeline graph.
const (
	StageSearch          StageID = "search"
	StageRead            StageID = "read"
	StageAnalyze         StageID = "analyze"
	StageWritingDirector StageID = "writing_director"
	StageSectionWriting  StageID = "section_writing"
	StageReport          StageID = "report"
	StageFailed          StageID = "failed"

	// Terminal ends the run.
	Terminal StageID = paperflow.END
)

// Next returns the stage that follows the state's current phase. Any
// recorded error routes to StageFailed, whatever the phase.
func Next(state *RunState) StageID {
	if state.Failed() {
		return StageFailed
	}
	switch state.CurrentStage {
	case PhaseInit:
		return StageSearch
	case PhaseSearching:
		return StageRead
	case PhaseReading:
		return StageAnalyze
	case PhaseAnalyzing:
		return StageWritingDirector
	case PhaseWritingDirector:
		return StageSectionWriting
	case PhaseSectionWriting, PhaseWriting:
		return StageReport
	default:
		return Terminal
	}
}

func route(_ paperflow.Context, state *RunState) string {
	return string(Next(state))
}
