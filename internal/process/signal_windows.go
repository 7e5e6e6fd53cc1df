//go:build windows

package process

import (
	"os/exec"
	"strconv"
	"syscall"
)

// setProcessGroup creates a new process group on Windows.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}

// terminateProcess uses taskkill to terminate the process tree.
func terminateProcess(h *Handle) error {
	if h.cmd.Process == nil || h.Exited() {
		return nil
	}
	if !h.group {
		return h.cmd.Process.Kill()
	}
	return exec.Command("taskkill", "/T", "/PID", strconv.Itoa(h.pid)).Run()
}

// killProcess forcefully kills the process tree, falling back to the direct
// child when taskkill is unavailable.
func killProcess(h *Handle) error {
	if h.cmd.Process == nil || h.Exited() {
		return nil
	}
	if h.group {
		if err := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(h.pid)).Run(); err == nil {
			return nil
		}
	}
	return h.cmd.Process.Kill()
}
