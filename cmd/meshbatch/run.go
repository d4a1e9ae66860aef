package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/backmassage/meshbatch/internal/check"
	"github.com/backmassage/meshbatch/internal/config"
	"github.com/backmassage/meshbatch/internal/display"
	"github.com/backmassage/meshbatch/internal/pipeline"
)

// newRunCmd builds "run" or, with process set, "process" (every stage but
// the merge).
func newRunCmd(a *app, process bool) *cobra.Command {
	var rf config.Flags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Consolidate textures, process every batch, and merge the results",
		Args:  cobra.NoArgs,
	}
	if process {
		cmd.Use = "process"
		cmd.Short = "Consolidate textures and process every batch without merging"
	}
	config.BindRunFlags(cmd.Flags(), &rf)
	if process {
		_ = cmd.Flags().MarkHidden("only-merge")
	}

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if process && rf.OnlyMerge {
			return errors.New("--only-merge cannot be used with process")
		}
		if err := a.setup(cmd, &rf); err != nil {
			return err
		}
		log, cfg := a.log, a.cfg

		display.PrintBanner(os.Stdout, version)
		log.Info("=== meshbatch v%s (%s) ===", version, commit)
		log.Info("Project: %s", cfg.Paths.ProjectRoot)
		log.Info("Worker:  %s", cfg.Paths.BlenderExecutable)
		log.Info("")

		opts := pipeline.Options{
			FilesPerBatch:   rf.BatchSize(cfg),
			DecimateRatio:   rf.Ratio(cfg),
			SkipConsolidate: rf.SkipConsolidate,
			SkipDispatch:    rf.SkipDispatch,
			SkipMerge:       process,
			OnlyMerge:       rf.OnlyMerge,
		}.Normalize()

		// Fail fast before touching any file when the worker cannot start.
		if !opts.SkipDispatch || !opts.SkipMerge {
			if err := check.CheckDeps(cfg); err != nil {
				log.Error("%v", err)
				return exitCode(exitFatal)
			}
		}

		run, err := pipeline.New(cfg, log).Run(cmd.Context(), opts)
		pipeline.LogSummary(log, run)
		if errors.Is(err, context.Canceled) {
			log.Warn("Interrupted; running workers were stopped")
		}
		if code := statusCode(run.Status); code != exitOK {
			return exitCode(code)
		}
		return nil
	}
	return cmd
}

func statusCode(s pipeline.Status) int {
	switch s {
	case pipeline.Success:
		return exitOK
	case pipeline.PartialSuccess:
		return exitPartial
	case pipeline.Cancelled:
		return exitCancelled
	}
	return exitFatal
}
