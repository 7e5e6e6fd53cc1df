// Package shell runs one-shot shell commands that can be cancelled by id
// while they are in flight.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/cquest/internal/domain"
	"github.com/brianly1003/cquest/internal/domain/ports"
	"github.com/brianly1003/cquest/internal/pathutil"
	"github.com/brianly1003/cquest/internal/process"
)

// DefaultPollInterval is how often a running job checks for exit and kill
// requests.
const DefaultPollInterval = 50 * time.Millisecond

// Exit codes reported for jobs that did not run to completion.
const (
	ExitCodeKilled  = 130
	ExitCodeUnknown = -1
)

// Result is the captured outcome of a job.
type Result struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

func killedResult() *Result {
	return &Result{Stdout: "", Stderr: "^C", ExitCode: ExitCodeKilled}
}

func terminatedResult() *Result {
	return &Result{Stdout: "", Stderr: "Process terminated", ExitCode: ExitCodeUnknown}
}

// Config configures a Runner.
type Config struct {
	Shell        pathutil.Shell
	PollInterval time.Duration
}

// Runner runs shell jobs tracked in a registry keyed by process id.
type Runner struct {
	shell    pathutil.Shell
	interval time.Duration
	registry *process.Registry
	history  ports.HistoryRecorder
}

// NewRunner creates a Runner. history may be nil.
func NewRunner(cfg Config, registry *process.Registry, history ports.HistoryRecorder) *Runner {
	if cfg.Shell.Program == "" {
		cfg.Shell = pathutil.DefaultShell()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Runner{
		shell:    cfg.Shell,
		interval: cfg.PollInterval,
		registry: registry,
		history:  history,
	}
}

// lockedBuffer lets the poll loop read output while exec is still copying.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.ToValidUTF8(b.buf.String(), "�")
}

// Run executes command under processID and blocks until it exits, is killed
// through Kill, or is replaced in the registry. Cancelling ctx kills the job
// and returns ctx.Err().
func (r *Runner) Run(ctx context.Context, processID, command, workDir string) (*Result, error) {
	if strings.TrimSpace(command) == "" {
		return nil, domain.ErrEmptyCommand
	}

	var stdout, stderr lockedBuffer
	cmd := r.shell.Command(command, workDir)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	h, err := process.Start(cmd, process.Options{NewGroup: true})
	if err != nil {
		return nil, domain.NewSpawnError("command", err)
	}
	entry := r.registry.Register(processID, h)

	recordID := r.recordStart(ctx, processID, command, workDir)
	log.Info().
		Str("process_id", processID).
		Int("pid", h.PID()).
		Str("command", truncate(command, 80)).
		Msg("shell job started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.registry.Remove(processID, entry)
			_ = h.Stop()
			r.recordEnd(recordID, ports.OutcomeKilled, nil)
			log.Info().Str("process_id", processID).Msg("shell job cancelled")
			return nil, ctx.Err()
		case <-ticker.C:
		}

		if entry.ConsumeKill() {
			r.registry.Remove(processID, entry)
			if err := h.Stop(); err != nil {
				log.Warn().Err(err).Str("process_id", processID).Msg("failed to signal shell job")
			}
			r.recordEnd(recordID, ports.OutcomeKilled, nil)
			log.Info().Str("process_id", processID).Msg("shell job killed")
			return killedResult(), nil
		}

		if !r.registry.Holds(processID, entry) {
			r.recordEnd(recordID, ports.OutcomeTerminated, nil)
			log.Info().Str("process_id", processID).Msg("shell job no longer tracked")
			return terminatedResult(), nil
		}

		if !h.Exited() {
			continue
		}

		r.registry.Remove(processID, entry)
		if h.WaitFailed() {
			r.recordEnd(recordID, ports.OutcomeFailed, nil)
			return nil, fmt.Errorf("failed to wait for command: %w", h.Err())
		}

		code, ok := h.ExitCode()
		if !ok {
			code = ExitCodeUnknown
		}
		r.recordEnd(recordID, ports.OutcomeCompleted, &code)
		log.Info().
			Str("process_id", processID).
			Int("exit_code", code).
			Msg("shell job finished")

		return &Result{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: code,
		}, nil
	}
}

// Kill asks the job running under processID to stop. The job's own poll
// loop terminates it on its next tick. Kill always reports success, also
// when no such job is running.
func (r *Runner) Kill(processID string) bool {
	if r.registry.RequestKill(processID) {
		log.Debug().Str("process_id", processID).Msg("kill requested")
	} else {
		log.Debug().Str("process_id", processID).Msg("kill requested for unknown job")
	}
	return true
}

// Running returns the ids of jobs currently in flight.
func (r *Runner) Running() []string {
	return r.registry.IDs()
}

func (r *Runner) recordStart(ctx context.Context, processID, command, workDir string) string {
	if r.history == nil {
		return ""
	}
	return r.history.RunStarted(context.WithoutCancel(ctx), ports.RunKindShell, processID, command, workDir)
}

func (r *Runner) recordEnd(recordID string, outcome ports.RunOutcome, exitCode *int) {
	if r.history == nil || recordID == "" {
		return
	}
	r.history.RunEnded(context.Background(), recordID, outcome, exitCode)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
