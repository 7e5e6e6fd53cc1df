//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in a new process group so we can signal
// all of its descendants.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// terminateProcess sends SIGTERM to the process group.
func terminateProcess(h *Handle) error {
	return signalProcess(h, syscall.SIGTERM)
}

// killProcess sends SIGKILL to the process group.
func killProcess(h *Handle) error {
	return signalProcess(h, syscall.SIGKILL)
}

func signalProcess(h *Handle, sig syscall.Signal) error {
	if h.cmd.Process == nil {
		return nil
	}
	if h.Exited() {
		// The pid may already belong to someone else.
		return nil
	}
	if h.group {
		// Only trust the group if the child leads it; otherwise we would be
		// signalling our own group.
		if pgid, err := syscall.Getpgid(h.pid); err == nil && pgid == h.pid {
			if err := syscall.Kill(-pgid, sig); err == nil || err != syscall.ESRCH {
				return err
			}
		}
	}
	return h.cmd.Process.Signal(sig)
}
