package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/paperflow/pkg/paperflow/pipeline"
)

type runOptions struct {
	output       string
	yes          bool
	showThinking bool
}

func newRunCmd(g *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <request>",
		Short: "Start a new report run",
		Long: `Start a new report run for a research request. The proposed search
query is shown for review before any paper is fetched.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := strings.TrimSpace(strings.Join(args, " "))
			if request == "" {
				return errors.New("request must not be empty")
			}
			return execRun(cmd.Context(), g, opts, func(ctx context.Context, p *pipeline.Pipeline) (*pipeline.Run, error) {
				return p.Start(ctx, request)
			})
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

func newResumeCmd(g *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Continue a run from its last checkpoint",
		Long: `Continue a run from the stage after its last checkpoint. Requires
store.checkpoints_path so checkpoints outlive the process that wrote them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execRun(cmd.Context(), g, opts, func(ctx context.Context, p *pipeline.Pipeline) (*pipeline.Run, error) {
				return p.Resume(ctx, args[0])
			})
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the report to this file")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "accept the proposed search query without review")
	cmd.Flags().BoolVar(&opts.showThinking, "show-thinking", false, "print model reasoning while streaming")
}

func execRun(ctx context.Context, g *globalOptions, opts *runOptions, start func(context.Context, *pipeline.Pipeline) (*pipeline.Run, error)) (err error) {
	settings, err := g.load()
	if err != nil {
		return err
	}
	logger := g.logger(settings)

	a, err := newApp(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if cerr := a.Close(shutdownCtx); cerr != nil {
			logger.Warn("shutdown failed", slog.Any("error", cerr))
		}
	}()

	run, err := start(ctx, a.pipeline)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.out, "run %s\n", run.ID)

	c := newConsole(g.in, g.out, a.registry)
	c.autoApprove = opts.yes
	c.showThinking = opts.showThinking
	if ferr := c.follow(ctx, run.ID, run.Events); ferr != nil && ctx.Err() == nil {
		run.Cancel()
	}

	state, err := run.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("run %s: %w", run.ID, err)
	}
	if state.Failed() {
		return fmt.Errorf("run %s: %w", run.ID, state.Err())
	}

	if opts.output != "" {
		if err := os.WriteFile(opts.output, []byte(state.ReportMarkdown+"\n"), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(g.out, "report written to %s\n", opts.output)
		return nil
	}
	fmt.Fprintf(g.out, "\n%s\n", state.ReportMarkdown)
	return nil
}
