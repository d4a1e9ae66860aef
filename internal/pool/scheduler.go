// Package pool runs worker invocations with bounded concurrency.
//
// The scheduler dispatches invocations in FIFO order, keeps at most N
// processes alive, and detects completion by polling each process's liveness
// on a fixed interval. A unit's failure never affects its siblings. After
// every unit has terminated, declared outputs are checked: a zero exit with a
// missing output is a failure. Each output path belongs to exactly one
// invocation and is removed before that invocation starts, so a file left by
// an earlier run never counts as this run's output.
//
// The only shared mutable state is the handle table, guarded by one mutex, so
// Progress may be called from any goroutine while Run is active.
package pool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/backmassage/meshbatch/internal/logging"
	"github.com/backmassage/meshbatch/internal/metrics"
	"github.com/backmassage/meshbatch/internal/worker"
)

// Options configure a Scheduler.
type Options struct {
	Name           string        // Metrics label and log prefix, e.g. "batch".
	MaxParallel    int           // Upper bound on live processes; values below 1 mean 1.
	PollInterval   time.Duration // Liveness poll period.
	MaxDuration    time.Duration // Per-unit wall-time limit; 0 disables it.
	TerminateGrace time.Duration // Soft-stop window before the hard kill.
	Log            *logging.Logger
	Metrics        *metrics.Metrics
	// OnProgress, if set, is called from the Run goroutine whenever the
	// counts change.
	OnProgress func(Progress)
}

const defaultPollInterval = 200 * time.Millisecond

// Scheduler runs one set of invocations. It is not reusable across
// concurrent Run calls.
type Scheduler struct {
	launcher worker.Launcher
	opts     Options

	mu       sync.Mutex
	handles  map[int]*handle // Keyed by invocation index.
	progress Progress
	started  time.Time

	// stops runs Terminate for units over MaxDuration so the poll loop
	// keeps reaping and refilling slots during the grace period.
	stops errgroup.Group
}

type handle struct {
	index   int
	inv     worker.Invocation
	proc    worker.Process
	started time.Time
	// timedOut is set once a stop was requested for exceeding MaxDuration.
	// Only the Run goroutine touches it.
	timedOut bool
}

// New returns a Scheduler that starts processes through launcher.
func New(launcher worker.Launcher, opts Options) *Scheduler {
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Name == "" {
		opts.Name = "pool"
	}
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Scheduler{
		launcher: launcher,
		opts:     opts,
		handles:  make(map[int]*handle),
	}
}

// Progress returns a snapshot of the current counts.
func (s *Scheduler) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.progress
	if !s.started.IsZero() {
		p.Elapsed = time.Since(s.started)
	}
	return p
}

// Run executes invs and blocks until every launched process has terminated.
// On cancellation it terminates every live process tree, abandons pending
// invocations, and returns the partial report with an error wrapping
// ctx.Err().
func (s *Scheduler) Run(ctx context.Context, invs []worker.Invocation) (*Report, error) {
	results := make([]UnitResult, len(invs))
	for i, inv := range invs {
		results[i] = UnitResult{Name: inv.Name, Invocation: inv, State: Pending}
	}

	s.mu.Lock()
	s.started = time.Now()
	s.progress = Progress{Total: len(invs), Pending: len(invs)}
	s.mu.Unlock()
	s.opts.Metrics.UnitsPending.Set(float64(len(invs)))

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	next := 0
	for {
		for next < len(invs) && s.live() < s.opts.MaxParallel && ctx.Err() == nil {
			s.launch(ctx, next, &results[next])
			next++
		}
		if next == len(invs) && s.live() == 0 {
			break
		}

		select {
		case <-ctx.Done():
			s.cancel(results)
			return s.report(results), fmt.Errorf("%s pool: %w", s.opts.Name, ctx.Err())
		case <-ticker.C:
			s.poll(results)
		}
	}

	_ = s.stops.Wait()
	s.verify(results)
	return s.report(results), nil
}

func (s *Scheduler) live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *Scheduler) launch(ctx context.Context, index int, r *UnitResult) {
	inv := r.Invocation
	r.Started = time.Now()

	if err := clearOutputs(inv.Outputs); err != nil {
		s.notStarted(r, err, "stale_output")
		return
	}
	proc, err := s.launcher.Launch(ctx, inv)
	if err != nil {
		s.notStarted(r, err, "launch")
		return
	}

	r.State = Running
	r.Pid = proc.Pid()
	s.mu.Lock()
	s.handles[index] = &handle{index: index, inv: inv, proc: proc, started: r.Started}
	s.mu.Unlock()

	s.opts.Log.Debug("Started %s (pid %d): %s", inv.Name, r.Pid, inv)
	s.opts.Metrics.UnitsRunning.Inc()
	s.update(func(p *Progress) { p.Pending--; p.Running++ })
}

// notStarted records a unit that failed before its process existed.
func (s *Scheduler) notStarted(r *UnitResult, err error, reason string) {
	r.State = Failed
	r.Err = err
	r.ExitCode = -1
	s.opts.Log.Warn("%s: %v", r.Name, err)
	s.opts.Metrics.UnitsFailed.WithLabelValues(s.opts.Name, reason).Inc()
	s.update(func(p *Progress) { p.Pending--; p.Failed++ })
}

// clearOutputs removes declared outputs left over from an earlier run.
func clearOutputs(outputs []string) error {
	for _, out := range outputs {
		if err := os.Remove(out); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale output: %w", err)
		}
	}
	return nil
}

// snapshot returns live handles in dispatch order.
func (s *Scheduler) snapshot() []*handle {
	s.mu.Lock()
	hs := make([]*handle, 0, len(s.handles))
	for _, h := range s.handles {
		hs = append(hs, h)
	}
	s.mu.Unlock()
	sort.Slice(hs, func(i, j int) bool { return hs[i].index < hs[j].index })
	return hs
}

func (s *Scheduler) poll(results []UnitResult) {
	for _, h := range s.snapshot() {
		r := &results[h.index]
		if code, done := h.proc.Exited(); done {
			var cause error
			if h.timedOut {
				cause = worker.ErrTimedOut
			}
			s.finish(h, r, code, cause)
			continue
		}
		if !h.timedOut && s.opts.MaxDuration > 0 && time.Since(h.started) > s.opts.MaxDuration {
			h.timedOut = true
			s.opts.Log.Warn("%s exceeded %s; terminating", h.inv.Name, s.opts.MaxDuration)
			s.stops.Go(func() error {
				if err := h.proc.Terminate(s.opts.TerminateGrace); err != nil {
					s.opts.Log.Error("%s: %v", h.inv.Name, err)
				}
				return nil
			})
		}
	}
}

// finish records an exited unit and frees its slot. cause, when non-nil,
// overrides the exit code as the failure reason.
func (s *Scheduler) finish(h *handle, r *UnitResult, code int, cause error) {
	r.ExitCode = code
	r.Elapsed = time.Since(h.started)

	s.mu.Lock()
	delete(s.handles, h.index)
	s.mu.Unlock()
	s.opts.Metrics.UnitsRunning.Dec()
	s.opts.Metrics.UnitDuration.WithLabelValues(s.opts.Name).Observe(r.Elapsed.Seconds())

	switch {
	case cause != nil:
		s.fail(r, cause, "timeout")
	case code != 0:
		s.fail(r, &worker.ExitError{Name: h.inv.Name, Code: code}, "exit")
	default:
		r.State = Completed
		s.opts.Log.Debug("%s exited 0 after %s", h.inv.Name, r.Elapsed.Round(time.Millisecond))
		s.update(func(p *Progress) { p.Running--; p.Completed++ })
	}
}

func (s *Scheduler) fail(r *UnitResult, err error, reason string) {
	r.State = Failed
	r.Err = err
	r.Detail = logDetail(r.Invocation)
	if r.Detail != "" {
		s.opts.Log.Warn("%s failed: %v (%s)", r.Name, err, r.Detail)
	} else {
		s.opts.Log.Warn("%s failed: %v", r.Name, err)
	}
	s.opts.Metrics.UnitsFailed.WithLabelValues(s.opts.Name, reason).Inc()
	s.update(func(p *Progress) { p.Running--; p.Failed++ })
}

// cancel terminates every live process tree concurrently and marks the rest
// of the work as cancelled.
func (s *Scheduler) cancel(results []UnitResult) {
	hs := s.snapshot()
	if len(hs) > 0 {
		s.opts.Log.Warn("Cancelling: terminating %d running %s process(es)", len(hs), s.opts.Name)
	}

	var g errgroup.Group
	for _, h := range hs {
		g.Go(func() error {
			if err := h.proc.Terminate(s.opts.TerminateGrace); err != nil {
				return fmt.Errorf("%s: %w", h.inv.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.opts.Log.Error("Terminate: %v", err)
	}
	_ = s.stops.Wait()

	for _, h := range hs {
		r := &results[h.index]
		code, _ := h.proc.Exited()
		r.ExitCode = code
		r.Elapsed = time.Since(h.started)
		r.State = Cancelled
		r.Err = worker.ErrTerminated
		s.mu.Lock()
		delete(s.handles, h.index)
		s.mu.Unlock()
		s.opts.Metrics.UnitsRunning.Dec()
	}
	for i := range results {
		if results[i].State == Pending {
			results[i].State = Cancelled
			results[i].Err = context.Canceled
		}
	}
	s.update(func(p *Progress) {
		p.Cancelled = p.Running + p.Pending
		p.Running, p.Pending = 0, 0
	})
}

// verify checks declared outputs of units that exited 0.
func (s *Scheduler) verify(results []UnitResult) {
	for i := range results {
		r := &results[i]
		if r.State != Completed {
			continue
		}
		for _, out := range r.Invocation.Outputs {
			if _, err := os.Stat(out); err != nil {
				r.Missing = append(r.Missing, out)
			}
		}
		if len(r.Missing) > 0 {
			r.State = Failed
			r.Err = fmt.Errorf("%w: %s", worker.ErrMissingOutput, r.Missing[0])
			s.opts.Log.Warn("%s exited 0 but produced no %s", r.Name, r.Missing[0])
			s.opts.Metrics.UnitsFailed.WithLabelValues(s.opts.Name, "missing_output").Inc()
			s.update(func(p *Progress) { p.Completed--; p.Failed++ })
			continue
		}
		s.opts.Metrics.UnitsCompleted.WithLabelValues(s.opts.Name).Inc()
	}
}

func (s *Scheduler) update(fn func(*Progress)) {
	s.mu.Lock()
	fn(&s.progress)
	p := s.progress
	p.Elapsed = time.Since(s.started)
	s.mu.Unlock()

	s.opts.Metrics.UnitsPending.Set(float64(p.Pending))
	if s.opts.OnProgress != nil {
		s.opts.OnProgress(p)
	}
}

func (s *Scheduler) report(results []UnitResult) *Report {
	rep := &Report{Units: results}
	s.mu.Lock()
	rep.Elapsed = time.Since(s.started)
	s.mu.Unlock()

	for _, r := range results {
		switch r.State {
		case Completed:
			rep.Completed++
		case Failed:
			rep.Failed++
		case Cancelled:
			rep.Cancelled++
		}
		for _, out := range r.Invocation.Outputs {
			rep.ExpectedOutputs++
			if _, err := os.Stat(out); err == nil {
				rep.ActualOutputs++
			}
		}
	}
	return rep
}

// logDetail returns the first error-looking line a failed worker printed,
// checking stderr before stdout.
func logDetail(inv worker.Invocation) string {
	for _, path := range []string{inv.StderrPath, inv.StdoutPath} {
		if path == "" {
			continue
		}
		if s, err := worker.ScanLog(path); err == nil && s.FirstError != "" {
			return s.FirstError
		}
	}
	return ""
}
