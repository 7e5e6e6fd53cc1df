// Package process tracks child processes by caller-assigned id and wraps
// the platform details of signalling whole process groups.
package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// pipeDrainDelay bounds how long Wait keeps copying output after the child
// exits, in case a background grandchild still holds the pipes open.
const pipeDrainDelay = 2 * time.Second

// Handle is a started child process. A single goroutine waits on it, so the
// exit can be observed without blocking (Exited) or by waiting (Wait).
type Handle struct {
	cmd   *exec.Cmd
	pid   int
	group bool

	done    chan struct{}
	waitErr error

	closeOnce sync.Once
	closers   []io.Closer
}

// Options controls how a child is started.
type Options struct {
	// NewGroup starts the child in its own process group so that Terminate
	// and Kill reach its descendants too.
	NewGroup bool
}

// Start starts cmd and begins waiting on it in the background.
func Start(cmd *exec.Cmd, opts Options) (*Handle, error) {
	return start(cmd, opts, nil)
}

// StartStreaming starts cmd with its stdout and stderr connected to the
// returned readers. Both readers deliver every byte the child wrote and then
// report io.EOF once the child has exited. Callers must keep reading both
// until EOF.
func StartStreaming(cmd *exec.Cmd, opts Options) (h *Handle, stdout, stderr io.Reader, err error) {
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	h, err = start(cmd, opts, []io.Closer{outW, errW})
	if err != nil {
		_ = outR.Close()
		_ = errR.Close()
		return nil, nil, nil, err
	}
	return h, outR, errR, nil
}

func start(cmd *exec.Cmd, opts Options, closers []io.Closer) (*Handle, error) {
	if opts.NewGroup {
		setProcessGroup(cmd)
	}
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = pipeDrainDelay
	}

	if err := cmd.Start(); err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}

	h := &Handle{
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		group:   opts.NewGroup,
		done:    make(chan struct{}),
		closers: closers,
	}
	go h.wait()
	return h, nil
}

func (h *Handle) wait() {
	h.waitErr = h.cmd.Wait()
	h.closeOnce.Do(func() {
		for _, c := range h.closers {
			_ = c.Close()
		}
	})
	close(h.done)
}

// PID returns the process ID.
func (h *Handle) PID() int {
	return h.pid
}

// Done returns a channel that's closed once the child has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exited reports whether the child has been reaped, without blocking.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the child has been reaped and returns the wait error.
// A non-zero exit is reported as *exec.ExitError.
func (h *Handle) Wait() error {
	<-h.done
	return h.waitErr
}

// Err returns the wait error once the child has exited, or nil while it is
// still running.
func (h *Handle) Err() error {
	if !h.Exited() {
		return nil
	}
	return h.waitErr
}

// ExitCode returns the child's exit code. ok is false while the child is
// running, when it was terminated by a signal, or when it could not be
// waited on.
func (h *Handle) ExitCode() (code int, ok bool) {
	if !h.Exited() {
		return -1, false
	}
	state := h.cmd.ProcessState
	if state == nil {
		return -1, false
	}
	code = state.ExitCode()
	return code, code >= 0
}

// Success reports whether the child exited with status zero.
func (h *Handle) Success() bool {
	code, ok := h.ExitCode()
	return ok && code == 0
}

// Status describes how the child ended, e.g. "exit status 2" or
// "signal: killed".
func (h *Handle) Status() string {
	if !h.Exited() {
		return "running"
	}
	if h.cmd.ProcessState != nil {
		return h.cmd.ProcessState.String()
	}
	if h.waitErr != nil {
		return h.waitErr.Error()
	}
	return "unknown"
}

// WaitFailed reports whether the child could not be waited on at all, as
// opposed to exiting with a non-zero status. Output pipes held open by a
// background grandchild past the drain delay do not count as a failure.
func (h *Handle) WaitFailed() bool {
	if !h.Exited() {
		return false
	}
	return h.waitErr != nil && h.cmd.ProcessState == nil
}

// Terminate asks the child, and its group when it has one, to exit.
// Signalling a child that already exited is not an error.
func (h *Handle) Terminate() error {
	return ignoreDone(terminateProcess(h))
}

// Kill forcibly stops the child, and its group when it has one.
func (h *Handle) Kill() error {
	return ignoreDone(killProcess(h))
}

// Stop terminates the child and then force-kills it. It does not wait.
func (h *Handle) Stop() error {
	termErr := h.Terminate()
	killErr := h.Kill()
	if killErr != nil {
		return killErr
	}
	return termErr
}

func ignoreDone(err error) error {
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
