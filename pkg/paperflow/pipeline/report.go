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

// ReportStage streams the final markdown report from the written sections.
type ReportStage struct {
	client llm.Client
	retry  perrors.RetryConfig
	logger *slog.Logger
}

// NewReportStage creates the report stage.
func NewReportStage(client llm.Client, retry perrors.RetryConfig, logger *slog.Logger) *ReportStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportStage{client: client, retry: retry, logger: logger}
}

func (s *ReportStage) ID() StageID  { return StageReport }
func (s *ReportStage) Phase() Phase { return PhaseReporting }

// Execute implements Stage.
func (s *ReportStage) Execute(ctx context.Context, state *RunState, events event.Publisher, _ *gate.Gate) error {
	if len(state.WrittenSections) == 0 {
		return &perrors.ValidationError{Field: "written_sections", Message: "no sections to report"}
	}
	req := llm.Prompt(reportSystemPrompt, reportPrompt(state.UserRequest, state.Sections, state.WrittenSections))
	report, err := streamTo(ctx, s.client, s.retry, req, StageReport, events)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	if report == "" {
		return &perrors.ValidationError{Field: "report_markdown", Message: "empty report"}
	}
	state.ReportMarkdown = report
	s.logger.Info("report generated", slog.Int("bytes", len(report)))
	return nil
}

// Summary implements summarizer. The completed event carries the report.
func (s *ReportStage) Summary(state *RunState) any {
	return state.ReportMarkdown
}
