package pipeline

import (
	"fmt"
	"time"
)

// Stage names a pipeline stage.
type Stage string

const (
	StagePreflight   Stage = "preflight"
	StageConsolidate Stage = "consolidate"
	StageDispatch    Stage = "dispatch"
	StageMerge       Stage = "merge"
)

// StageStatus is the outcome of one stage.
type StageStatus int

const (
	StageSucceeded StageStatus = iota
	StagePartial               // Finished with per-item failures.
	StageFailed
	StageSkipped
	StageCancelled
)

func (s StageStatus) String() string {
	switch s {
	case StageSucceeded:
		return "success"
	case StagePartial:
		return "partial"
	case StageFailed:
		return "failed"
	case StageSkipped:
		return "skipped"
	case StageCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("StageStatus(%d)", int(s))
}

// StageResult records what one stage did. Counter fields not relevant to a
// stage stay zero.
type StageResult struct {
	Stage   Stage
	Status  StageStatus
	Elapsed time.Duration

	// Consolidate
	Moved   int
	Skipped int
	Renamed int
	Errored int

	// Dispatch and Merge
	Completed int
	Failed    int
	Expected  int // Declared outputs.
	Produced  int // Declared outputs present afterwards.

	Warnings []string
}

func (r *StageResult) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Status is the terminal state of a run.
type Status int

const (
	Success Status = iota
	PartialSuccess
	Failed
	Cancelled
)

// Statuses lists every terminal status.
var Statuses = []Status{Success, PartialSuccess, Failed, Cancelled}

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case PartialSuccess:
		return "partial"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Run is the record of one pipeline execution.
type Run struct {
	ID            string
	Options       Options
	Started       time.Time
	Elapsed       time.Duration
	Stages        []StageResult
	GeometryFiles int
	Batches       int
	Artifact      string // Final artifact path; set only when Merge succeeded.
	Status        Status
	Err           error
}

// Stage returns the result for s, if that stage was reached.
func (r *Run) Stage(s Stage) (StageResult, bool) {
	for _, st := range r.Stages {
		if st.Stage == s {
			return st, true
		}
	}
	return StageResult{}, false
}

func (r *Run) add(st StageResult) {
	r.Stages = append(r.Stages, st)
}

// settle derives the terminal status from the stage results.
func (r *Run) settle() {
	if r.Err != nil {
		if k, ok := KindOf(r.Err); ok && k == KindCancelled {
			r.Status = Cancelled
		} else {
			r.Status = Failed
		}
		return
	}
	r.Status = Success
	for _, st := range r.Stages {
		if st.Status == StagePartial {
			r.Status = PartialSuccess
		}
	}
}
