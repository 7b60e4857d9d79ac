package warpforge

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/projecteru2/core/log"

	"github.com/warpforge/engine/internal/wfexec"
	"github.com/warpforge/engine/internal/wfimage"
	"github.com/warpforge/engine/internal/wfplot"
	"github.com/warpforge/engine/internal/wfrunner"
	"github.com/warpforge/engine/internal/wftypes"
	"github.com/warpforge/engine/internal/wfvalidate"
	"github.com/warpforge/engine/progress"
)

// runFormulaCommand runs a single formula document standalone, packing its
// declared outputs immediately after the container exits (spec §4.E).
func runFormulaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run-formula <path>",
		Short: "Run a single formula document and pack its outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0]) //nolint:gosec // path from CLI argument
			if err != nil {
				return fmt.Errorf("read formula: %w", err)
			}
			formula, verrs := wfvalidate.ValidateFormula(source)
			if len(verrs) > 0 {
				return reportValidationErrors(verrs)
			}

			ctx := cmd.Context()
			cache := wfimage.NewCache(conf.ImageCacheDir())
			events := make(chan wfrunner.Event, 64) //nolint:mnd
			done := streamEvents(ctx, events)

			stepDir, err := os.MkdirTemp(conf.WorkspaceBaseDir(), "wf-formula-*")
			if err != nil {
				return fmt.Errorf("create step workspace: %w", err)
			}
			defer os.RemoveAll(stepDir) //nolint:errcheck

			execCtx := wfexec.Context{RuntimePath: conf.RuntimePath, MountBase: conf.MountBase, Cache: cache}
			staged, err := wfexec.Run(ctx, execCtx, "wf-formula", stepDir, *formula, events)
			close(events)
			<-done
			if err != nil {
				return err
			}

			outputs, err := wfexec.PackOutputs(ctx, formula.Outputs, staged, conf.OutputDir)
			if err != nil {
				return err
			}
			return printOutputs(outputs)
		},
	}
}

// runPlotCommand runs a plot document: topological execution of every step
// plus plot-level output packing (spec §4.F).
func runPlotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run-plot <path>",
		Short: "Run a plot document end to end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0]) //nolint:gosec // path from CLI argument
			if err != nil {
				return fmt.Errorf("read plot: %w", err)
			}
			plot, verrs := wfvalidate.ValidatePlot(source)
			if len(verrs) > 0 {
				return reportValidationErrors(verrs)
			}

			ctx := cmd.Context()
			if errs := wfplot.SweepStaleWorkspaces(ctx, conf.WorkspaceBaseDir()); len(errs) > 0 {
				log.WithFunc("warpforge.run-plot").Warnf(ctx, "stale workspace sweep: %v", errs)
			}

			cache := wfimage.NewCache(conf.ImageCacheDir())
			events := make(chan wfrunner.Event, 64) //nolint:mnd
			done := streamEvents(ctx, events)

			runCtx := wfplot.Context{
				RuntimePath:   conf.RuntimePath,
				MountBase:     conf.MountBase,
				OutputDir:     conf.OutputDir,
				WorkspaceBase: conf.WorkspaceBaseDir(),
				Cache:         cache,
			}
			outputs, err := wfplot.RunPlot(ctx, plot, runCtx, events)
			close(events)
			<-done
			if err != nil {
				return err
			}
			return printOutputs(outputs)
		},
	}
}

// streamEvents logs every wfrunner.Event as it arrives and returns a channel
// closed once events itself is closed and drained. Logging goes through a
// progress.Tracker so a future caller (e.g. a terminal renderer) can swap in
// its own Tracker without touching the runner/executor/scheduler layers.
func streamEvents(ctx context.Context, events <-chan wfrunner.Event) <-chan struct{} {
	done := make(chan struct{})
	logger := log.WithFunc("warpforge.run")
	tracker := progress.NewTracker(func(ev wfrunner.Event) {
		switch body := ev.Body.(type) {
		case wfrunner.Output:
			logger.Infof(ctx, "%s: %s", ev.Topic, body.Line)
		case wfrunner.ExitCode:
			if body.Code != nil {
				logger.Infof(ctx, "%s: exited %d", ev.Topic, *body.Code)
			}
		}
	})
	go func() {
		defer close(done)
		for ev := range events {
			tracker.OnEvent(ev)
		}
	}()
	return done
}

func reportValidationErrors(errs []*wfvalidate.Error) error {
	for _, e := range errs {
		fmt.Fprintln(os.Stderr, e.Error())
	}
	return fmt.Errorf("%d validation error(s)", len(errs))
}

func printOutputs(outputs []wftypes.Output) error {
	for _, out := range outputs {
		fmt.Printf("%s\t%s\n", out.Name, out.Digest)
	}
	return nil
}
