package pipeline

import "github.com/backmassage/meshbatch/internal/config"

// Options select which stages run and how batches are shaped.
type Options struct {
	FilesPerBatch   int     // Geometry files per batch; 0 means the config default.
	DecimateRatio   float64 // Passed to every batch worker.
	SkipConsolidate bool
	SkipDispatch    bool
	SkipMerge       bool // Stop after Dispatch (process command).
	OnlyMerge       bool // Run only Merge; implies both skips.
}

// DefaultOptions runs every stage with the config's batch defaults.
func DefaultOptions(cfg config.Config) Options {
	return Options{
		FilesPerBatch: cfg.Processing.DefaultFilesPerBatch,
		DecimateRatio: cfg.Processing.DefaultDecimateRatio,
	}
}

// Normalize resolves flag interactions. OnlyMerge wins over everything else:
// it forces both skips and re-enables Merge, whatever order the flags came in.
func (o Options) Normalize() Options {
	if o.OnlyMerge {
		o.SkipConsolidate = true
		o.SkipDispatch = true
		o.SkipMerge = false
	}
	return o
}

// needsWorker reports whether any stage will launch the worker executable.
func (o Options) needsWorker() bool {
	return !o.SkipDispatch || !o.SkipMerge
}
