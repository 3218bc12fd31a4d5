package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/paperflow/pkg/paperflow"
	"github.com/randalmurphal/paperflow/pkg/paperflow/docstore"
	perrors "github.com/randalmurphal/paperflow/pkg/paperflow/errors"
	"github.com/randalmurphal/paperflow/pkg/paperflow/event"
	"github.com/randalmurphal/paperflow/pkg/paperflow/gate"
	"github.com/randalmurphal/paperflow/pkg/paperflow/llm"
)

// Node IDs of the section-writing graph.
const (
	StepDirect   = "direct"
	StepWrite    = "write"
	StepRetrieve = "retrieve"
	StepDone     = paperflow.END
)

// WritingState is the state of the section-writing graph.
type WritingState struct {
	UserRequest    string `json:"user_request"`
	GlobalAnalysis string `json:"global_analysis"`
	Outline        string `json:"outline"`

	Sections            []SectionSpec  `json:"sections"`
	WrittenSections     []SectionState `json:"written_sections"`
	CurrentSectionIndex int            `json:"current_section_index"`

	// RetrievedDocs is the material gathered for the section being
	// written. It is cleared when that section completes.
	RetrievedDocs []docstore.Document `json:"retrieved_docs"`

	// Dropped holds outline segments discarded by ParseOutline.
	Dropped []string `json:"dropped,omitempty"`

	// WriteSteps counts writer calls.
	WriteSteps int `json:"write_steps"`
}

// NextSectionStep decides what follows a write: more material for an
// unfinished section, the next section, or done.
func NextSectionStep(ws *WritingState) string {
	if len(ws.WrittenSections) == 0 {
		return StepWrite
	}
	if !ws.WrittenSections[len(ws.WrittenSections)-1].Completed {
		return StepRetrieve
	}
	if ws.CurrentSectionIndex+1 >= len(ws.Sections) {
		return StepDone
	}
	return StepWrite
}

// SectionWriterConfig tunes the section-writing loop.
type SectionWriterConfig struct {
	// ApprovalMarker in the writer's output completes a section.
	ApprovalMarker string

	// MaxRetrievalRounds bounds retrieval per section. A section that has
	// used them all is accepted on its next write.
	MaxRetrievalRounds int

	// RetrievalK is the number of matches per query text.
	RetrievalK int

	Retry perrors.RetryConfig
}

// SectionWriter runs the direct/write/retrieve graph.
type SectionWriter struct {
	client llm.Client
	store  docstore.Store
	cfg    SectionWriterConfig
	logger *slog.Logger
	graph  *paperflow.CompiledGraph[*WritingState]
}

// NewSectionWriter compiles the section-writing graph. store may be nil,
// in which case retrieval finds nothing.
func NewSectionWriter(client llm.Client, store docstore.Store, cfg SectionWriterConfig, logger *slog.Logger) (*SectionWriter, error) {
	if cfg.ApprovalMarker == "" {
		cfg.ApprovalMarker = "APPROVED"
	}
	if cfg.MaxRetrievalRounds < 0 {
		cfg.MaxRetrievalRounds = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &SectionWriter{client: client, store: store, cfg: cfg, logger: logger}

	graph, err := paperflow.NewGraph[*WritingState]().
		Named("section_writing").
		AddNode(StepDirect, w.direct).
		AddNode(StepWrite, w.write).
		AddNode(StepRetrieve, w.retrieve).
		AddEdge(StepDirect, StepWrite).
		AddConditionalEdge(StepWrite, func(_ paperflow.Context, ws *WritingState) string {
			return NextSectionStep(ws)
		}).
		AddEdge(StepRetrieve, StepWrite).
		SetEntry(StepDirect).
		Compile()
	if err != nil {
		return nil, fmt.Errorf("compile section graph: %w", err)
	}
	w.graph = graph
	return w, nil
}

// MaxWriteSteps is the most writer calls n sections can take.
func (w *SectionWriter) MaxWriteSteps(n int) int {
	return n * (1 + w.cfg.MaxRetrievalRounds)
}

// Write runs the graph over ws until every section is complete.
func (w *SectionWriter) Write(ctx paperflow.Context, ws *WritingState) (*WritingState, error) {
	n := len(ws.Sections)
	if n == 0 {
		sections, _ := ParseOutline(ws.Outline)
		n = len(sections)
	}
	// direct, then at most one retrieve between consecutive writes.
	limit := 1 + 2*w.MaxWriteSteps(n)
	return w.graph.Run(ctx, ws, paperflow.WithMaxIterations(limit))
}

func (w *SectionWriter) direct(ctx paperflow.Context, ws *WritingState) (*WritingState, error) {
	ws.CurrentSectionIndex = -1
	ws.WrittenSections = []SectionState{}
	ws.RetrievedDocs = nil

	if len(ws.Sections) == 0 {
		ws.Sections, ws.Dropped = ParseOutline(ws.Outline)
		for _, seg := range ws.Dropped {
			ctx.Logger().Warn("outline segment without section number dropped", slog.String("segment", seg))
		}
	}
	if len(ws.Sections) == 0 {
		return ws, &perrors.ValidationError{Field: "sections", Message: "no sections to write"}
	}
	return ws, nil
}

func (w *SectionWriter) write(ctx paperflow.Context, ws *WritingState) (*WritingState, error) {
	if n := len(ws.WrittenSections); n == 0 || ws.WrittenSections[n-1].Completed {
		if ws.CurrentSectionIndex+1 >= len(ws.Sections) {
			return ws, fmt.Errorf("all %d sections already written", len(ws.Sections))
		}
		ws.WrittenSections = append(ws.WrittenSections, SectionState{})
		ws.CurrentSectionIndex++
	}

	idx := ws.CurrentSectionIndex
	spec := ws.Sections[idx]
	section := &ws.WrittenSections[idx]

	ctx.Events().Publish(event.New(string(StageSectionWriting), event.StatusProcessing,
		fmt.Sprintf("writing section %d/%d: %s", idx+1, len(ws.Sections), spec)))

	req := llm.Prompt(fmt.Sprintf(writerSystemPrompt, w.cfg.ApprovalMarker),
		writerPrompt(spec, ws.GlobalAnalysis, ws.RetrievedDocs))
	content, err := complete(ctx, w.client, w.cfg.Retry, req)
	if err != nil {
		return ws, fmt.Errorf("write section %s: %w", spec, err)
	}
	ws.WriteSteps++

	approved := strings.Contains(content, w.cfg.ApprovalMarker)
	section.Content = strings.TrimSpace(strings.ReplaceAll(content, w.cfg.ApprovalMarker, ""))
	switch {
	case approved:
		section.Completed = true
	case section.RetrievalRounds >= w.cfg.MaxRetrievalRounds:
		section.Completed = true
		section.Forced = true
		ctx.Logger().Warn("section accepted without approval",
			slog.String("section", spec.String()),
			slog.Int("retrieval_rounds", section.RetrievalRounds),
		)
	}
	if section.Completed {
		ws.RetrievedDocs = nil
	}
	return ws, nil
}

func (w *SectionWriter) retrieve(ctx paperflow.Context, ws *WritingState) (*WritingState, error) {
	idx := ws.CurrentSectionIndex
	spec := ws.Sections[idx]
	section := &ws.WrittenSections[idx]
	section.RetrievalRounds++

	if w.store == nil {
		return ws, nil
	}

	texts := []string{strings.TrimSpace(spec.String() + " " + spec.Body)}
	if section.Content != "" {
		texts = append(texts, section.Content)
	}
	results, err := perrors.Do(ctx, w.cfg.Retry, func(c context.Context) ([][]docstore.Match, error) {
		return w.store.Query(c, texts, w.cfg.RetrievalK)
	})
	if err != nil {
		return ws, fmt.Errorf("retrieve for section %s: %w", spec, err)
	}

	added := 0
	for _, matches := range results {
		for _, m := range matches {
			if !hasDocument(ws.RetrievedDocs, m.Document.ID) {
				ws.RetrievedDocs = append(ws.RetrievedDocs, m.Document)
				added++
			}
		}
	}
	ctx.Events().Publish(event.New(string(StageSectionWriting), event.StatusProcessing,
		fmt.Sprintf("retrieved %d documents for section %s (round %d)", added, spec, section.RetrievalRounds)))
	return ws, nil
}

func hasDocument(docs []docstore.Document, id string) bool {
	for _, d := range docs {
		if d.ID == id {
			return true
		}
	}
	return false
}

// SectionWritingStage writes every outlined section with a SectionWriter.
type SectionWritingStage struct {
	writer *SectionWriter
	logger *slog.Logger
}

// NewSectionWritingStage creates the section writing stage.
func NewSectionWritingStage(writer *SectionWriter, logger *slog.Logger) *SectionWritingStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &SectionWritingStage{writer: writer, logger: logger}
}

func (s *SectionWritingStage) ID() StageID  { return StageSectionWriting }
func (s *SectionWritingStage) Phase() Phase { return PhaseSectionWriting }

// Execute implements Stage.
func (s *SectionWritingStage) Execute(ctx context.Context, state *RunState, events event.Publisher, g *gate.Gate) error {
	ws := &WritingState{
		UserRequest:    state.UserRequest,
		GlobalAnalysis: state.Analysis,
		Outline:        state.Outline,
		Sections:       state.Sections,
	}

	logger := s.logger
	if pc, ok := ctx.(paperflow.Context); ok {
		logger = pc.Logger()
	}
	sub := paperflow.NewContext(ctx,
		paperflow.WithLogger(logger),
		paperflow.WithEvents(events),
		paperflow.WithGate(g),
		paperflow.WithContextRunID(state.RunID),
	)

	out, err := s.writer.Write(sub, ws)
	if out != nil {
		state.Sections = out.Sections
		state.WrittenSections = out.WrittenSections
		state.CurrentSectionIndex = out.CurrentSectionIndex
	}
	return err
}

// Summary implements summarizer.
func (s *SectionWritingStage) Summary(state *RunState) any {
	forced := 0
	for _, sec := range state.WrittenSections {
		if sec.Forced {
			forced++
		}
	}
	return fmt.Sprintf("wrote %d sections (%d without approval)", len(state.WrittenSections), forced)
}
