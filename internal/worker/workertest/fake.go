// Package workertest provides an in-memory worker.Launcher for scheduler and
// pipeline tests. Fake processes exit after a fixed number of liveness polls
// instead of wall-clock time, which keeps tests fast and deterministic.
package workertest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/backmassage/meshbatch/internal/worker"
)

// Behavior scripts one fake process.
type Behavior struct {
	Polls       int   // Exited reports running for this many calls.
	ExitCode    int   // Reported once the polls are used up.
	Hang        bool  // Never exit on its own; only Terminate stops it.
	SkipOutputs bool  // Exit without writing the declared outputs.
	LaunchErr   error // Fail the launch itself.
	Stderr      string
	// TerminateDelay makes Terminate block this long before the process
	// counts as stopped, like a worker using its whole grace period.
	TerminateDelay time.Duration
}

// Launcher records every launch and tracks concurrency.
type Launcher struct {
	// Script chooses the behavior for an invocation. Nil means exit 0 after
	// one poll with outputs written.
	Script func(inv worker.Invocation) Behavior

	mu         sync.Mutex
	nextPid    int
	running    int
	maxRunning int
	launched   []string
	finished   []string
	terminated []string
	events     []string
	invs       []worker.Invocation
}

// Launch implements worker.Launcher.
func (l *Launcher) Launch(ctx context.Context, inv worker.Invocation) (worker.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := Behavior{Polls: 1}
	if l.Script != nil {
		b = l.Script(inv)
	}
	if b.LaunchErr != nil {
		return nil, &worker.LaunchError{Name: inv.Name, Err: b.LaunchErr}
	}
	writeSink(inv.StdoutPath, "starting "+inv.Name+"\n")
	writeSink(inv.StderrPath, b.Stderr)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextPid++
	l.running++
	l.maxRunning = max(l.maxRunning, l.running)
	l.launched = append(l.launched, inv.Name)
	l.events = append(l.events, "launch "+inv.Name)
	l.invs = append(l.invs, inv)
	return &Process{l: l, inv: inv, b: b, pid: 10000 + l.nextPid}, nil
}

// MaxRunning is the highest number of simultaneously live fake processes.
func (l *Launcher) MaxRunning() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxRunning
}

// Running is the number of fake processes that have not exited.
func (l *Launcher) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Launched returns invocation names in launch order.
func (l *Launcher) Launched() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.launched...)
}

// Finished returns names of processes that exited on their own, in exit order.
func (l *Launcher) Finished() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.finished...)
}

// Terminated returns names of processes stopped through Terminate.
func (l *Launcher) Terminated() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.terminated...)
}

// Events returns "launch <name>", "exit <name>" and "terminate <name>"
// entries in the order they happened.
func (l *Launcher) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// Invocations returns every launched invocation.
func (l *Launcher) Invocations() []worker.Invocation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]worker.Invocation(nil), l.invs...)
}

// Process is a fake worker.Process.
type Process struct {
	l      *Launcher
	inv    worker.Invocation
	b      Behavior
	pid    int
	polls  int
	exited bool
	code   int
}

func (p *Process) Pid() int { return p.pid }

func (p *Process) Exited() (int, bool) {
	p.l.mu.Lock()
	defer p.l.mu.Unlock()
	if p.exited {
		return p.code, true
	}
	p.polls++
	if p.b.Hang || p.polls <= p.b.Polls {
		return 0, false
	}
	if p.b.ExitCode == 0 && !p.b.SkipOutputs {
		for _, out := range p.inv.Outputs {
			writeSink(out, "artifact "+p.inv.Name)
		}
	}
	p.exited = true
	p.code = p.b.ExitCode
	p.l.running--
	p.l.finished = append(p.l.finished, p.inv.Name)
	p.l.events = append(p.l.events, "exit "+p.inv.Name)
	return p.code, true
}

func (p *Process) Terminate(time.Duration) error {
	if p.b.TerminateDelay > 0 {
		time.Sleep(p.b.TerminateDelay)
	}
	p.l.mu.Lock()
	defer p.l.mu.Unlock()
	if p.exited {
		return nil
	}
	p.exited = true
	p.code = 143
	p.l.running--
	p.l.terminated = append(p.l.terminated, p.inv.Name)
	p.l.events = append(p.l.events, "terminate "+p.inv.Name)
	return nil
}

func writeSink(path, content string) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	_ = os.WriteFile(path, []byte(content), 0o644)
}
