package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/backmassage/meshbatch/internal/check"
	"github.com/backmassage/meshbatch/internal/config"
	"github.com/backmassage/meshbatch/internal/logging"
	"github.com/backmassage/meshbatch/internal/metrics"
	"github.com/backmassage/meshbatch/internal/worker"
)

// Orchestrator runs the stage sequence for one immutable Config.
type Orchestrator struct {
	cfg      config.Config
	log      *logging.Logger
	launcher worker.Launcher
	metrics  *metrics.Metrics
	lookPath func(string) (string, error)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLauncher replaces the process launcher (tests use a fake).
func WithLauncher(l worker.Launcher) Option {
	return func(o *Orchestrator) { o.launcher = l }
}

// WithMetrics records into m instead of a private registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithExecutableCheck replaces the worker executable lookup.
func WithExecutableCheck(fn func(exe string) (string, error)) Option {
	return func(o *Orchestrator) { o.lookPath = fn }
}

// New returns an Orchestrator. cfg is copied and never modified.
func New(cfg config.Config, log *logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		log:      log,
		launcher: worker.ExecLauncher{},
		lookPath: check.CheckWorker,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logging.Nop()
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	return o
}

// Metrics returns the collectors the orchestrator records into.
func (o *Orchestrator) Metrics() *metrics.Metrics { return o.metrics }

// Run executes the enabled stages in order. The returned Run is always
// non-nil. The error is a *StageError when a stage aborted the run; batch
// failures alone only downgrade the status to PartialSuccess.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Run, error) {
	opts = opts.Normalize()
	if opts.FilesPerBatch == 0 {
		opts.FilesPerBatch = o.cfg.Processing.DefaultFilesPerBatch
	}
	run := &Run{ID: uuid.NewString(), Options: opts, Started: time.Now()}
	log := o.log.With("run", run.ID[:8])

	run.Err = o.runStages(ctx, log, run)
	run.Elapsed = time.Since(run.Started)
	run.settle()

	statuses := make([]string, len(Statuses))
	for i, s := range Statuses {
		statuses[i] = s.String()
	}
	o.metrics.SetStatus(run.Status.String(), statuses)
	if path := o.cfg.Options.MetricsFile; path != "" {
		if err := o.metrics.WriteTextfile(o.cfg.Resolve(path)); err != nil {
			log.Warn("Cannot write metrics file: %v", err)
		}
	}
	return run, run.Err
}

func (o *Orchestrator) runStages(ctx context.Context, log *logging.Logger, run *Run) error {
	opts := run.Options

	if err := o.timed(run, StagePreflight, func(st *StageResult) error {
		return o.preflight(opts)
	}); err != nil {
		return err
	}

	if opts.SkipConsolidate {
		run.add(StageResult{Stage: StageConsolidate, Status: StageSkipped})
	} else if err := o.timed(run, StageConsolidate, func(st *StageResult) error {
		return o.consolidate(ctx, log, st)
	}); err != nil {
		return err
	}

	if opts.SkipDispatch {
		run.add(StageResult{Stage: StageDispatch, Status: StageSkipped})
	} else if err := o.timed(run, StageDispatch, func(st *StageResult) error {
		return o.dispatch(ctx, log, run, st)
	}); err != nil {
		return err
	}

	if opts.SkipMerge {
		run.add(StageResult{Stage: StageMerge, Status: StageSkipped})
		return nil
	}
	return o.timed(run, StageMerge, func(st *StageResult) error {
		return o.merge(ctx, log, run, st)
	})
}

// timed runs one stage body, records its duration and result, and derives
// the stage status from the returned error.
func (o *Orchestrator) timed(run *Run, stage Stage, body func(*StageResult) error) error {
	st := StageResult{Stage: stage}
	start := time.Now()
	err := body(&st)
	st.Elapsed = time.Since(start)
	o.metrics.ObserveStage(string(stage), st.Elapsed)

	if err != nil {
		if k, ok := KindOf(err); ok && k == KindCancelled {
			st.Status = StageCancelled
		} else {
			st.Status = StageFailed
		}
	}
	run.add(st)
	return err
}

func (o *Orchestrator) preflight(opts Options) error {
	if err := o.cfg.Validate(); err != nil {
		return &StageError{Stage: StagePreflight, Kind: KindConfiguration, Err: err}
	}
	if opts.FilesPerBatch < config.MinFilesPerBatch || opts.FilesPerBatch > config.MaxFilesPerBatch {
		return &StageError{Stage: StagePreflight, Kind: KindConfiguration,
			Err: fmt.Errorf("files per batch must be in [%d, %d] (got %d)", config.MinFilesPerBatch, config.MaxFilesPerBatch, opts.FilesPerBatch)}
	}
	if opts.DecimateRatio < config.MinDecimateRatio || opts.DecimateRatio > config.MaxDecimateRatio {
		return &StageError{Stage: StagePreflight, Kind: KindConfiguration,
			Err: fmt.Errorf("decimate ratio must be in [0, 1] (got %v)", opts.DecimateRatio)}
	}
	if opts.needsWorker() {
		if _, err := o.lookPath(o.cfg.Paths.BlenderExecutable); err != nil {
			return &StageError{Stage: StagePreflight, Kind: KindConfiguration, Err: err}
		}
	}
	return nil
}

func cancelled(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Kind: KindCancelled, Err: err}
}
