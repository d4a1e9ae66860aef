package pipeline

import (
	"errors"
	"fmt"

	"github.com/backmassage/meshbatch/internal/check"
)

// Sentinel errors for errors.Is on a returned *StageError.
var (
	ErrMissingExecutable = check.ErrWorkerNotFound
	ErrNoGeometry        = errors.New("no geometry files found")
	ErrNoArtifacts       = errors.New("no batch artifacts to merge")
	ErrMergeFailed       = errors.New("merge failed")
)

// Kind classifies a fatal pipeline error.
type Kind int

const (
	KindConfiguration Kind = iota // Invalid config or missing executable.
	KindInputAbsent               // No geometry, or nothing to merge.
	KindWorkerFailure             // Every batch failed.
	KindMergeFailure              // The merge worker failed.
	KindCancelled                 // The run context was cancelled.
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindInputAbsent:
		return "input absent"
	case KindWorkerFailure:
		return "worker failure"
	case KindMergeFailure:
		return "merge failure"
	case KindCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// StageError is the error returned by Orchestrator.Run when a stage aborts
// the run.
type StageError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// KindOf returns the Kind of a *StageError in err's chain.
func KindOf(err error) (Kind, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}
