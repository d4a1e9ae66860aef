//go:build !windows

package worker

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcAttr puts the child in a new process group led by itself, so the
// whole tree can be signalled through the negative pid.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalTree sends SIGTERM (or SIGKILL when hard) to the process group.
// A group that no longer exists is not an error.
func signalTree(pid int, hard bool) error {
	sig := unix.SIGTERM
	if hard {
		sig = unix.SIGKILL
	}
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// exitCode maps death by signal to 128+signo, as shells do.
func exitCode(ps *os.ProcessState) int {
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ps.ExitCode()
}
