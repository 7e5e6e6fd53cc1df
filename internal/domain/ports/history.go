package ports

import (
	"context"
	"time"
)

// RunKind distinguishes the two kinds of tracked processes.
type RunKind string

const (
	RunKindShell   RunKind = "shell"
	RunKindService RunKind = "service"
)

// RunOutcome describes how a tracked process ended.
type RunOutcome string

const (
	OutcomeRunning    RunOutcome = "running"
	OutcomeCompleted  RunOutcome = "completed"
	OutcomeKilled     RunOutcome = "killed"
	OutcomeStopped    RunOutcome = "stopped"
	OutcomeTerminated RunOutcome = "terminated"
	OutcomeFailed     RunOutcome = "failed"
)

// RunRecord is one entry in the process history.
type RunRecord struct {
	ID        string     `json:"id"`
	Kind      RunKind    `json:"kind"`
	EntityID  string     `json:"entity_id"`
	Command   string     `json:"command"`
	WorkDir   string     `json:"work_dir,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	Outcome   RunOutcome `json:"outcome"`
}

// HistoryFilter narrows a history query. Zero values match everything.
type HistoryFilter struct {
	Kind     RunKind
	EntityID string
	Limit    int
}

// HistoryRecorder records process lifecycles. Recording is best effort;
// implementations log failures instead of returning them so that a broken
// history store never affects process handling.
type HistoryRecorder interface {
	// RunStarted records a spawned process and returns the record id.
	RunStarted(ctx context.Context, kind RunKind, entityID, command, workDir string) string

	// RunEnded completes the record created by RunStarted.
	RunEnded(ctx context.Context, recordID string, outcome RunOutcome, exitCode *int)
}

// HistoryReader queries recorded process runs.
type HistoryReader interface {
	List(ctx context.Context, filter HistoryFilter) ([]RunRecord, error)
}
