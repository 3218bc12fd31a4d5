package pipeline

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Phase is the stage a run is in.
type Phase string

// Run phases in pipeline order. Writing is kept for the report assembly
// boundary and is routed like SectionWriting.
const (
	PhaseInit            Phase = "init"
	PhaseSearching       Phase = "searching"
	PhaseReading         Phase = "reading"
	PhaseAnalyzing       Phase = "analyzing"
	PhaseWritingDirector Phase = "writing_director"
	PhaseSectionWriting  Phase = "section_writing"
	PhaseWriting         Phase = "writing"
	PhaseReporting       Phase = "reporting"
	PhaseCompleted       Phase = "completed"
	PhaseFailed          Phase = "failed"
)

// PaperRef is a search hit.
type PaperRef struct {
	ID         string    `json:"paper_id"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	Authors    []string  `json:"authors,omitempty"`
	Published  time.Time `json:"published"`
	Categories []string  `json:"categories,omitempty"`
	URL        string    `json:"url,omitempty"`
}

// KeyMethodology describes a paper's main method.
type KeyMethodology struct {
	Name      string `json:"name"`
	Principle string `json:"principle"`
	Novelty   string `json:"novelty"`
}

// ExtractedPaper is the structured reading of one paper.
type ExtractedPaper struct {
	PaperID           string         `json:"paper_id"`
	CoreProblem       string         `json:"core_problem"`
	KeyMethodology    KeyMethodology `json:"key_methodology"`
	DatasetsUsed      []string       `json:"datasets_used"`
	EvaluationMetrics []string       `json:"evaluation_metrics"`
	MainResults       string         `json:"main_results"`
	Limitations       string         `json:"limitations"`
	Contributions     []string       `json:"contributions"`
}

// Cluster groups papers by theme.
type Cluster struct {
	Name     string   `json:"name"`
	PaperIDs []string `json:"paper_ids"`
}

// ClusterAnalysis is the deep analysis of one cluster.
type ClusterAnalysis struct {
	Cluster  Cluster `json:"cluster"`
	Analysis string  `json:"analysis"`
}

// SectionSpec is one numbered section of the report outline.
type SectionSpec struct {
	Number string `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body,omitempty"`
}

// String renders the heading, e.g. "1.2 Method".
func (s SectionSpec) String() string {
	return s.Number + " " + s.Title
}

// SectionState is the progress of one written section. Completed never
// goes back to false.
type SectionState struct {
	Content         string `json:"content"`
	Completed       bool   `json:"completed"`
	RetrievalRounds int    `json:"retrieval_rounds"`
	// Forced marks a section accepted after running out of retrieval
	// rounds rather than approved by the writer.
	Forced bool `json:"forced,omitempty"`
}

// RunState is the mutable state threaded through the stages of one run.
// Only the executing stage writes to it.
type RunState struct {
	RunID        string `json:"run_id"`
	UserRequest  string `json:"user_request"`
	CurrentStage Phase  `json:"current_stage"`

	SearchQuery     SearchQuery       `json:"search_query"`
	SearchResults   []PaperRef        `json:"search_results"`
	ExtractedPapers []ExtractedPaper  `json:"extracted_papers"`
	Clusters        []Cluster         `json:"clusters"`
	ClusterAnalyses []ClusterAnalysis `json:"cluster_analyses"`
	// Analysis is the global analysis text.
	Analysis string `json:"analysis"`

	Outline             string         `json:"outline"`
	Sections            []SectionSpec  `json:"sections"`
	WrittenSections     []SectionState `json:"written_sections"`
	CurrentSectionIndex int            `json:"current_section_index"`

	ReportMarkdown string `json:"report_markdown"`

	// Errors holds at most one message per stage. The first one wins.
	Errors map[StageID]string `json:"errors"`
}

// NewRunState creates the state for a new run of request.
func NewRunState(request string) *RunState {
	return &RunState{
		RunID:               uuid.NewString(),
		UserRequest:         request,
		CurrentStage:        PhaseInit,
		CurrentSectionIndex: -1,
		Errors:              make(map[StageID]string),
	}
}

// Fail records msg for stage unless the stage already has an error.
// It reports whether msg was recorded.
func (s *RunState) Fail(stage StageID, msg string) bool {
	if s.Errors == nil {
		s.Errors = make(map[StageID]string)
	}
	if _, exists := s.Errors[stage]; exists {
		return false
	}
	s.Errors[stage] = msg
	return true
}

// Failed reports whether any stage recorded an error.
func (s *RunState) Failed() bool {
	return len(s.Errors) > 0
}

// Err summarises the recorded stage errors, or returns nil.
func (s *RunState) Err() error {
	if len(s.Errors) == 0 {
		return nil
	}
	stages := slices.Sorted(maps.Keys(s.Errors))
	first := stages[0]
	if len(stages) == 1 {
		return fmt.Errorf("stage %s failed: %s", first, s.Errors[first])
	}
	return fmt.Errorf("stage %s failed: %s (and %d more)", first, s.Errors[first], len(stages)-1)
}

// advance moves CurrentStage to p. It never moves backward except into
// PhaseFailed.
func (s *RunState) advance(p Phase) {
	if p == PhaseFailed || phaseRank(p) >= phaseRank(s.CurrentStage) {
		s.CurrentStage = p
	}
}

func phaseRank(p Phase) int {
	return slices.Index(phaseOrder, p)
}

var phaseOrder = []Phase{
	PhaseInit,
	PhaseSearching,
	PhaseReading,
	PhaseAnalyzing,
	PhaseWritingDirector,
	PhaseSectionWriting,
	PhaseWriting,
	PhaseReporting,
	PhaseCompleted,
	PhaseFailed,
}
