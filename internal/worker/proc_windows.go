//go:build windows

package worker

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// signalTree kills the process and its descendants with taskkill. Console
// workers have no soft stop, so both phases force.
func signalTree(pid int, _ bool) error {
	err := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid)).Run()
	if ee, ok := err.(*exec.ExitError); ok && ee.ExitCode() == 128 {
		// No such process: the tree is already gone.
		return nil
	}
	return err
}

func exitCode(ps *os.ProcessState) int {
	return ps.ExitCode()
}
