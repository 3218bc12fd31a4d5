package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	perrors "github.com/randalmurphal/paperflow/pkg/paperflow/errors"
	"github.com/randalmurphal/paperflow/pkg/paperflow/event"
	"github.com/randalmurphal/paperflow/pkg/paperflow/gate"
	"github.com/randalmurphal/paperflow/pkg/paperflow/llm"
)

// WritingDirectorStage drafts the report outline and splits it into
// sections.
type WritingDirectorStage struct {
	client llm.Client
	retry  perrors.RetryConfig
	logger *slog.Logger
}

// NewWritingDirectorStage creates the writing director stage.
func NewWritingDirectorStage(client llm.Client, retry perrors.RetryConfig, logger *slog.Logger) *WritingDirectorStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &WritingDirectorStage{client: client, retry: retry, logger: logger}
}

func (s *WritingDirectorStage) ID() StageID  { return StageWritingDirector }
func (s *WritingDirectorStage) Phase() Phase { return PhaseWritingDirector }

// Execute implements Stage.
func (s *WritingDirectorStage) Execute(ctx context.Context, state *RunState, _ event.Publisher, _ *gate.Gate) error {
	outline, err := complete(ctx, s.client, s.retry,
		llm.Prompt(directorSystemPrompt, directorPrompt(state.UserRequest, state.Analysis)))
	if err != nil {
		return fmt.Errorf("draft outline: %w", err)
	}
	state.Outline = outline

	sections, dropped := ParseOutline(outline)
	for _, seg := range dropped {
		s.logger.Warn("outline segment without section number dropped", slog.String("segment", seg))
	}
	if len(sections) == 0 {
		return &perrors.ValidationError{Field: "outline", Message: "outline has no numbered sections"}
	}
	state.Sections = sections
	return nil
}

// DirectorSummary is the completed payload of the writing director.
type DirectorSummary struct {
	Sections []string `json:"sections"`
	Dropped  []string `json:"dropped,omitempty"`
}

// Summary implements summarizer.
func (s *WritingDirectorStage) Summary(state *RunState) any {
	_, dropped := ParseOutline(state.Outline)
	headings := make([]string, len(state.Sections))
	for i, sec := range state.Sections {
		headings[i] = sec.String()
	}
	return DirectorSummary{Sections: headings, Dropped: dropped}
}
