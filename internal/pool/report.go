package pool

import (
	"fmt"
	"time"

	"github.com/backmassage/meshbatch/internal/worker"
)

// State is the lifecycle position of one unit.
type State int

const (
	Pending State = iota
	Running
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// UnitResult is the outcome of one invocation. Worker failures are carried
// here and nowhere else.
type UnitResult struct {
	Name       string
	Invocation worker.Invocation
	State      State
	Pid        int
	ExitCode   int
	Started    time.Time
	Elapsed    time.Duration
	Err        error
	Missing    []string // Declared outputs absent after a zero exit.
	Detail     string   // First error line found in the unit's logs.
}

// OK reports whether the unit completed with all outputs present.
func (r UnitResult) OK() bool { return r.State == Completed }

// Progress is a point-in-time view of a run.
type Progress struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
	Cancelled int
	Elapsed   time.Duration
}

// Done is the number of units that have terminated.
func (p Progress) Done() int { return p.Completed + p.Failed + p.Cancelled }

// Report summarizes a finished (or cancelled) run.
type Report struct {
	Units           []UnitResult // Invocation order.
	Completed       int
	Failed          int
	Cancelled       int
	ExpectedOutputs int
	ActualOutputs   int
	Elapsed         time.Duration
}

// Outputs lists the declared outputs of completed units.
func (r *Report) Outputs() []string {
	var out []string
	for _, u := range r.Units {
		if u.OK() {
			out = append(out, u.Invocation.Outputs...)
		}
	}
	return out
}

// Failures returns the failed units.
func (r *Report) Failures() []UnitResult {
	var out []UnitResult
	for _, u := range r.Units {
		if u.State == Failed {
			out = append(out, u)
		}
	}
	return out
}
