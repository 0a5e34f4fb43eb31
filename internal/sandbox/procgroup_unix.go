//go:build unix

package sandbox

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup starts the child in its own process group so the whole
// tree can be signalled at once.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killProcessGroup sends SIGKILL to the child's process group.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	// Fall back to the leader alone if the group is gone or not ours.
	if perr := cmd.Process.Kill(); perr != nil && !errors.Is(perr, os.ErrProcessDone) {
		return perr
	}
	return nil
}

// processGroupAlive reports whether any process of the group led by pid
// still exists.
func processGroupAlive(pid int) bool {
	return syscall.Kill(-pid, 0) == nil
}
