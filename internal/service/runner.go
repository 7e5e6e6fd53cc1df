// Package service runs long-lived shell commands whose output is streamed
// line by line as service_output events.
package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/cquest/internal/domain"
	"github.com/brianly1003/cquest/internal/domain/events"
	"github.com/brianly1003/cquest/internal/domain/ports"
	"github.com/brianly1003/cquest/internal/pathutil"
	"github.com/brianly1003/cquest/internal/process"
)

// DefaultPollInterval is how often the watcher checks whether a service exited.
const DefaultPollInterval = 100 * time.Millisecond

// Config configures a Runner.
type Config struct {
	Shell        pathutil.Shell
	PollInterval time.Duration
}

// Runner starts, stops and lists services. Service ids are exclusive: a
// second Start under a running id fails.
type Runner struct {
	shell     pathutil.Shell
	interval  time.Duration
	registry  *process.Registry
	publisher ports.EventPublisher
	history   ports.HistoryRecorder
}

// NewRunner creates a Runner. history may be nil.
func NewRunner(cfg Config, registry *process.Registry, publisher ports.EventPublisher, history ports.HistoryRecorder) *Runner {
	if cfg.Shell.Program == "" {
		cfg.Shell = pathutil.DefaultShell()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Runner{
		shell:     cfg.Shell,
		interval:  cfg.PollInterval,
		registry:  registry,
		publisher: publisher,
		history:   history,
	}
}

// Start spawns command as service serviceID and returns once it is running.
// Output and the final exit notification arrive as events.
func (r *Runner) Start(ctx context.Context, serviceID, command, workDir string) error {
	if strings.TrimSpace(serviceID) == "" {
		return domain.NewValidationError("service_id", "required")
	}
	if strings.TrimSpace(command) == "" {
		return domain.ErrEmptyCommand
	}

	entry, ok := r.registry.Reserve(serviceID)
	if !ok {
		return domain.ErrServiceAlreadyRunning
	}

	h, stdout, stderr, err := process.StartStreaming(r.shell.Command(command, workDir), process.Options{NewGroup: true})
	if err != nil {
		r.registry.Remove(serviceID, entry)
		return domain.NewSpawnError("service", err)
	}

	if !r.registry.Attach(serviceID, entry, h) {
		// Stopped while we were spawning.
		_ = h.Stop()
		go func() { _, _ = io.Copy(io.Discard, stdout) }()
		go func() { _, _ = io.Copy(io.Discard, stderr) }()
		log.Info().Str("service_id", serviceID).Msg("service stopped during start")
		return nil
	}

	var recordID string
	if r.history != nil {
		recordID = r.history.RunStarted(context.WithoutCancel(ctx), ports.RunKindService, serviceID, command, workDir)
	}

	log.Info().
		Str("service_id", serviceID).
		Int("pid", h.PID()).
		Str("command", command).
		Msg("service started")

	var readers sync.WaitGroup
	readers.Add(2)
	go r.streamOutput(serviceID, stdout, false, &readers)
	go r.streamOutput(serviceID, stderr, true, &readers)
	go r.watch(serviceID, entry, h, &readers, recordID)

	return nil
}

// Stop stops the service and reports whether it was running. The watcher
// sees the entry gone and exits without a terminal event.
func (r *Runner) Stop(serviceID string) (bool, error) {
	entry, ok := r.registry.Take(serviceID)
	if !ok {
		return false, nil
	}

	h := entry.Handle()
	if h == nil {
		// Start will stop the process when it fails to attach it.
		return true, nil
	}

	if err := h.Stop(); err != nil {
		log.Warn().Err(err).Str("service_id", serviceID).Msg("failed to stop service")
		return true, fmt.Errorf("failed to stop service: %w", err)
	}

	log.Info().Str("service_id", serviceID).Int("pid", h.PID()).Msg("service stopped")
	return true, nil
}

// List returns a snapshot of running service ids.
func (r *Runner) List() []string {
	return r.registry.IDs()
}

// StopAll stops every running service.
func (r *Runner) StopAll() {
	for _, id := range r.registry.IDs() {
		if _, err := r.Stop(id); err != nil {
			log.Warn().Err(err).Str("service_id", id).Msg("failed to stop service during shutdown")
		}
	}
}

func (r *Runner) publish(event events.Event) {
	if r.publisher != nil {
		r.publisher.Publish(event)
	}
}

func (r *Runner) streamOutput(serviceID string, pipe io.Reader, isStderr bool, wg *sync.WaitGroup) {
	defer wg.Done()

	br := bufio.NewReader(pipe)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.ToValidUTF8(strings.TrimRight(line, "\r\n"), "�")
			r.publish(events.NewServiceLineEvent(serviceID, line, isStderr))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Str("service_id", serviceID).Bool("stderr", isStderr).Msg("error reading service output")
				_, _ = io.Copy(io.Discard, pipe)
			}
			return
		}
	}
}

func (r *Runner) watch(serviceID string, entry *process.Entry, h *process.Handle, readers *sync.WaitGroup, recordID string) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for range ticker.C {
		if !r.registry.Holds(serviceID, entry) {
			r.recordEnd(recordID, ports.OutcomeStopped, nil)
			return
		}
		if !h.Exited() {
			continue
		}
		if !r.registry.Remove(serviceID, entry) {
			// Stop won the race.
			r.recordEnd(recordID, ports.OutcomeStopped, nil)
			return
		}

		// Every line is published before the terminal event.
		readers.Wait()

		var exitCode *int
		outcome := ports.OutcomeFailed
		if code, ok := h.ExitCode(); ok {
			exitCode = &code
			outcome = ports.OutcomeCompleted
		}
		r.publish(events.NewServiceExitEvent(serviceID, exitCode))
		r.recordEnd(recordID, outcome, exitCode)

		log.Info().
			Str("service_id", serviceID).
			Str("status", h.Status()).
			Msg("service exited")
		return
	}
}

func (r *Runner) recordEnd(recordID string, outcome ports.RunOutcome, exitCode *int) {
	if r.history == nil || recordID == "" {
		return
	}
	r.history.RunEnded(context.Background(), recordID, outcome, exitCode)
}
