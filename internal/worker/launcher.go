package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Process is a started worker. Exited is a non-blocking liveness check that
// reports the exit code once the process has terminated, so the scheduler can
// poll it or an event-driven source can stand in for it.
type Process interface {
	Pid() int
	Exited() (code int, done bool)
	// Terminate stops the whole process tree: a soft stop first, then a hard
	// kill once grace has elapsed. It returns after the process has exited.
	Terminate(grace time.Duration) error
}

// Launcher starts invocations.
type Launcher interface {
	Launch(ctx context.Context, inv Invocation) (Process, error)
}

// ExecLauncher starts invocations as OS processes in their own process group,
// with stdout and stderr redirected to the invocation's log files.
type ExecLauncher struct {
	// Env, when non-nil, replaces the inherited environment.
	Env []string
}

// killWait bounds how long Terminate waits after the hard kill.
const killWait = 10 * time.Second

// Launch starts inv. The returned process is reaped by a background goroutine;
// callers observe it only through Exited.
func (l ExecLauncher) Launch(ctx context.Context, inv Invocation) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stdout, err := openSink(inv.StdoutPath)
	if err != nil {
		return nil, &LaunchError{Name: inv.Name, Err: err}
	}
	stderr, err := openSink(inv.StderrPath)
	if err != nil {
		closeAll(stdout)
		return nil, &LaunchError{Name: inv.Name, Err: err}
	}

	cmd := exec.Command(inv.Executable, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = l.Env
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		closeAll(stdout, stderr)
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrExecutableNotFound, inv.Executable)
		}
		return nil, &LaunchError{Name: inv.Name, Err: err}
	}

	p := &execProcess{cmd: cmd, pid: cmd.Process.Pid, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		closeAll(stdout, stderr)
		switch {
		case cmd.ProcessState != nil:
			p.code = exitCode(cmd.ProcessState)
		case err != nil:
			p.code = -1
		}
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	pid  int
	code int // Written once before done is closed.
	done chan struct{}
}

func (p *execProcess) Pid() int { return p.pid }

func (p *execProcess) Exited() (int, bool) {
	select {
	case <-p.done:
		return p.code, true
	default:
		return 0, false
	}
}

func (p *execProcess) Terminate(grace time.Duration) error {
	select {
	case <-p.done:
	default:
		if err := signalTree(p.pid, false); err != nil {
			return fmt.Errorf("terminate pid %d: %w", p.pid, err)
		}
		timer := time.NewTimer(grace)
		select {
		case <-p.done:
		case <-timer.C:
		}
		timer.Stop()
	}

	// The leader may be gone while descendants in its group survive.
	if err := signalTree(p.pid, true); err != nil {
		return fmt.Errorf("kill pid %d: %w", p.pid, err)
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("pid %d did not exit after kill", p.pid)
	}
}

// openSink creates (truncating) a log file; an empty path discards output.
func openSink(path string) (*os.File, error) {
	if path == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}
