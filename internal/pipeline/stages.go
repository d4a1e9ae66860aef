package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/backmassage/meshbatch/internal/assets"
	"github.com/backmassage/meshbatch/internal/batch"
	"github.com/backmassage/meshbatch/internal/display"
	"github.com/backmassage/meshbatch/internal/logging"
	"github.com/backmassage/meshbatch/internal/pool"
	"github.com/backmassage/meshbatch/internal/textures"
	"github.com/backmassage/meshbatch/internal/worker"
)

// consolidate flattens textures. Nothing here is fatal except cancellation:
// a missing texture tree is a warning and per-file errors make the stage
// partial.
func (o *Orchestrator) consolidate(ctx context.Context, log *logging.Logger, st *StageResult) error {
	log = log.Named("textures")
	src, dst := o.cfg.TextureSourceDir(), o.cfg.TextureDir()

	files, err := DiscoverTextures(ctx, o.cfg)
	switch {
	case ctx.Err() != nil:
		return cancelled(StageConsolidate, ctx.Err())
	case errors.Is(err, assets.ErrNotFound):
		st.Status = StageSkipped
		st.warn("texture folder not found: %s", src)
		log.Warn("Texture folder not found, skipping: %s", src)
		return nil
	case err != nil:
		st.Status = StagePartial
		st.warn("texture scan failed: %v", err)
		log.Warn("Texture scan failed: %v", err)
		return nil
	}

	log.Info("Consolidating %d texture(s) into %s", len(files), dst)
	res, err := textures.NewConsolidator(dst, log).Consolidate(ctx, files)
	st.Moved, st.Skipped, st.Renamed, st.Errored = res.Moved, res.Skipped, res.Renamed, res.Errored
	for _, oc := range res.Outcomes {
		o.metrics.TextureOutcomes.WithLabelValues(oc.Kind.String()).Inc()
	}
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(StageConsolidate, ctx.Err())
		}
		st.Status = StagePartial
		st.warn("%v", err)
		log.Warn("%v", err)
		return nil
	}
	for _, oc := range res.Outcomes {
		if oc.Kind == textures.Errored {
			st.warn("%s: %v", oc.Source, oc.Err)
		}
	}
	if res.Errored > 0 {
		st.Status = StagePartial
	}
	log.Success("Textures: %d moved, %d duplicate(s) removed, %d renamed, %d error(s)",
		res.Moved, res.Skipped, res.Renamed, res.Errored)

	if o.cfg.Processing.CleanupSubfolders {
		cr, err := textures.RemoveEmptyDirs(src, dst)
		if err != nil {
			st.warn("cleanup: %v", err)
			log.Warn("Cleanup of %s failed: %v", src, err)
			return nil
		}
		for dir, ferr := range cr.Failures {
			st.warn("cleanup %s: %v", dir, ferr)
			log.Warn("Cannot remove %s: %v", dir, ferr)
		}
		if len(cr.Removed) > 0 {
			log.Info("Removed %d empty folder(s)", len(cr.Removed))
		}
	}
	return nil
}

// dispatch runs one worker per batch. It fails the run only when there is
// no geometry or no batch produced its artifact.
func (o *Orchestrator) dispatch(ctx context.Context, log *logging.Logger, run *Run, st *StageResult) error {
	log = log.Named("dispatch")
	opts := run.Options

	files, err := DiscoverGeometry(ctx, o.cfg)
	if ctx.Err() != nil {
		return cancelled(StageDispatch, ctx.Err())
	}
	if err != nil {
		return &StageError{Stage: StageDispatch, Kind: KindInputAbsent, Err: fmt.Errorf("%w: %v", ErrNoGeometry, err)}
	}
	if len(files) == 0 {
		return &StageError{Stage: StageDispatch, Kind: KindInputAbsent,
			Err: fmt.Errorf("%w in %s", ErrNoGeometry, o.cfg.GeometryDir())}
	}
	run.GeometryFiles = len(files)
	o.metrics.GeometryFiles.Set(float64(len(files)))

	batches, err := batch.Partition(files, opts.FilesPerBatch)
	if err != nil {
		return &StageError{Stage: StageDispatch, Kind: KindConfiguration, Err: err}
	}
	run.Batches = len(batches)
	o.metrics.Batches.Set(float64(len(batches)))

	if err := o.prepareBatchDir(ctx, log, st); err != nil {
		return err
	}

	invs := make([]worker.Invocation, len(batches))
	for i, b := range batches {
		if invs[i], err = worker.BatchInvocation(o.cfg, b, opts.DecimateRatio); err != nil {
			return &StageError{Stage: StageDispatch, Kind: KindConfiguration, Err: err}
		}
	}

	n := min(o.cfg.Processing.MaxParallelBlenderInstances, len(invs))
	log.Info("%d geometry file(s) in %d batch(es) of up to %d, %d parallel worker(s), decimate ratio %s",
		len(files), len(batches), opts.FilesPerBatch, n, formatRatio(opts.DecimateRatio))

	sched := pool.New(o.launcher, pool.Options{
		Name:           "batch",
		MaxParallel:    n,
		PollInterval:   time.Duration(o.cfg.Processing.ProcessCheckIntervalMs) * time.Millisecond,
		MaxDuration:    time.Duration(o.cfg.Processing.MaxBatchDurationSec) * time.Second,
		TerminateGrace: time.Duration(o.cfg.Processing.TerminateGraceMs) * time.Millisecond,
		Log:            log,
		Metrics:        o.metrics,
		OnProgress:     progressLogger(log, len(invs)),
	})
	rep, err := sched.Run(ctx, invs)
	st.Completed, st.Failed = rep.Completed, rep.Failed
	st.Expected, st.Produced = rep.ExpectedOutputs, rep.ActualOutputs
	if err != nil {
		return cancelled(StageDispatch, err)
	}

	for _, u := range rep.Failures() {
		if u.Detail != "" {
			st.warn("%s: %v (%s)", u.Name, u.Err, u.Detail)
		} else {
			st.warn("%s: %v", u.Name, u.Err)
		}
	}
	o.handleBatchLogs(log, rep, st)

	if rep.Completed == 0 {
		return &StageError{Stage: StageDispatch, Kind: KindWorkerFailure,
			Err: fmt.Errorf("%w: all %d batch(es) failed", ErrNoArtifacts, len(invs))}
	}
	if rep.Failed > 0 {
		st.Status = StagePartial
		log.Warn("%d of %d batch(es) failed; continuing with %d artifact(s)", rep.Failed, len(invs), rep.ActualOutputs)
	} else {
		log.Success("All %d batch(es) completed in %s", len(invs), display.FormatDuration(rep.Elapsed))
	}
	return nil
}

// prepareBatchDir creates the batch folder, emptying it first when
// options.cleanOutputFolders is set. Leftover artifacts from an earlier run
// are otherwise merged too, so they are reported.
func (o *Orchestrator) prepareBatchDir(ctx context.Context, log *logging.Logger, st *StageResult) error {
	dir := o.cfg.BatchOutputDir()
	if o.cfg.Options.CleanOutputFolders {
		log.Info("Cleaning %s", dir)
		if err := os.RemoveAll(dir); err != nil {
			return &StageError{Stage: StageDispatch, Kind: KindConfiguration, Err: fmt.Errorf("clean batch folder: %w", err)}
		}
	} else if stale, err := DiscoverArtifacts(ctx, o.cfg); err == nil && len(stale) > 0 {
		st.warn("%d artifact(s) from an earlier run in %s", len(stale), dir)
		log.Warn("%d existing artifact(s) in %s will be overwritten or merged", len(stale), dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &StageError{Stage: StageDispatch, Kind: KindConfiguration, Err: fmt.Errorf("create batch folder: %w", err)}
	}
	return nil
}

// merge runs the merge worker over the batch folder through the same pool
// with a single slot. It is never launched when there is nothing to merge.
func (o *Orchestrator) merge(ctx context.Context, log *logging.Logger, run *Run, st *StageResult) error {
	log = log.Named("merge")

	artifacts, err := DiscoverArtifacts(ctx, o.cfg)
	if ctx.Err() != nil {
		return cancelled(StageMerge, ctx.Err())
	}
	if err != nil && !errors.Is(err, assets.ErrNotFound) {
		return &StageError{Stage: StageMerge, Kind: KindInputAbsent, Err: fmt.Errorf("%w: %v", ErrNoArtifacts, err)}
	}
	if len(artifacts) == 0 {
		return &StageError{Stage: StageMerge, Kind: KindInputAbsent,
			Err: fmt.Errorf("%w in %s", ErrNoArtifacts, o.cfg.BatchOutputDir())}
	}

	inv, err := worker.MergeInvocation(o.cfg)
	if err != nil {
		return &StageError{Stage: StageMerge, Kind: KindConfiguration, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(inv.Outputs[0]), 0o755); err != nil {
		return &StageError{Stage: StageMerge, Kind: KindMergeFailure, Err: fmt.Errorf("%w: %v", ErrMergeFailed, err)}
	}
	log.Info("Merging %d artifact(s) into %s", len(artifacts), inv.Outputs[0])

	sched := pool.New(o.launcher, pool.Options{
		Name:           "merge",
		MaxParallel:    1,
		PollInterval:   time.Duration(o.cfg.Processing.ProcessCheckIntervalMs) * time.Millisecond,
		TerminateGrace: time.Duration(o.cfg.Processing.TerminateGraceMs) * time.Millisecond,
		Log:            log,
		Metrics:        o.metrics,
	})
	rep, err := sched.Run(ctx, []worker.Invocation{inv})
	st.Completed, st.Failed = rep.Completed, rep.Failed
	st.Expected, st.Produced = rep.ExpectedOutputs, rep.ActualOutputs
	if err != nil {
		return cancelled(StageMerge, err)
	}

	u := rep.Units[0]
	if !u.OK() {
		detail := u.Err.Error()
		if u.Detail != "" {
			detail += " (" + u.Detail + ")"
		}
		return &StageError{Stage: StageMerge, Kind: KindMergeFailure, Err: fmt.Errorf("%w: %s", ErrMergeFailed, detail)}
	}

	run.Artifact = inv.Outputs[0]
	if fi, err := os.Stat(run.Artifact); err == nil {
		log.Success("Merged %s (%s) in %s", filepath.Base(run.Artifact), display.FormatBytes(fi.Size()), display.FormatDuration(u.Elapsed))
	}
	return nil
}

// progressLogger logs one line each time another batch finishes.
func progressLogger(log *logging.Logger, total int) func(pool.Progress) {
	last := 0
	return func(p pool.Progress) {
		if done := p.Done(); done != last {
			last = done
			log.Info("[%d/%d] batches finished (%d running, %d failed, %s elapsed)",
				done, total, p.Running, p.Failed, display.FormatDuration(p.Elapsed))
		}
	}
}

func formatRatio(r float64) string {
	return fmt.Sprintf("%g", r)
}
