// Package domain contains domain errors used throughout the application.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrServiceAlreadyRunning  = errors.New("service is already running")
	ErrEmptyCommand           = errors.New("invalid command: command cannot be empty")
	ErrInvalidPrompt          = errors.New("invalid prompt: message cannot be empty")
	ErrConflictingSessionMode = errors.New("session id and continue mode are mutually exclusive")
	ErrHomeDirNotFound        = errors.New("could not find home directory")
	ErrSubscriberClosed       = errors.New("subscriber is closed")
)

// SpawnError is returned when a child process could not be created.
type SpawnError struct {
	Op  string // what was being spawned: "claude", "command", "service"
	Err error
}

func (e *SpawnError) Error() string {
	if e.Op == "service" {
		return fmt.Sprintf("failed to start service: %v", e.Err)
	}
	return fmt.Sprintf("failed to spawn %s: %v", e.Op, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// NewSpawnError creates a new SpawnError.
func NewSpawnError(op string, err error) *SpawnError {
	return &SpawnError{Op: op, Err: err}
}

// UpstreamError is a failure reported by a child process, either through its
// own output protocol or through a failing exit status. Error returns the
// message unchanged so callers see exactly what the child reported.
type UpstreamError struct {
	Message  string
	ExitCode int // -1 when the child exited successfully or the code is unknown
}

func (e *UpstreamError) Error() string {
	return e.Message
}

// NewUpstreamError creates a new UpstreamError.
func NewUpstreamError(message string, exitCode int) *UpstreamError {
	return &UpstreamError{Message: message, ExitCode: exitCode}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
