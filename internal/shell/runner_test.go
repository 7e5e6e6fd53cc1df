package shell

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianly1003/cquest/internal/domain"
	"github.com/brianly1003/cquest/internal/domain/ports"
	"github.com/brianly1003/cquest/internal/pathutil"
	"github.com/brianly1003/cquest/internal/process"
	"github.com/brianly1003/cquest/internal/testutil"
)

type historyCall struct {
	entityID string
	outcome  ports.RunOutcome
	exitCode *int
}

type fakeHistory struct {
	mu    sync.Mutex
	ids   map[string]string
	ended []historyCall
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{ids: make(map[string]string)}
}

func (f *fakeHistory) RunStarted(_ context.Context, kind ports.RunKind, entityID, _, _ string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := string(kind) + ":" + entityID
	f.ids[id] = entityID
	return id
}

func (f *fakeHistory) RunEnded(_ context.Context, recordID string, outcome ports.RunOutcome, exitCode *int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, historyCall{entityID: f.ids[recordID], outcome: outcome, exitCode: exitCode})
}

func (f *fakeHistory) calls() []historyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]historyCall(nil), f.ended...)
}

func newTestRunner(t *testing.T) (*Runner, *process.Registry, *fakeHistory) {
	t.Helper()
	testutil.RequireUnix(t)
	reg := process.NewRegistry("jobs")
	hist := newFakeHistory()
	return NewRunner(Config{PollInterval: 10 * time.Millisecond}, reg, hist), reg, hist
}

func TestRun_CapturesOutput(t *testing.T) {
	r, reg, hist := newTestRunner(t)

	res, err := r.Run(context.Background(), "p1", `echo out; echo err >&2; exit 4`, "")
	require.NoError(t, err)
	assert.Equal(t, &Result{Stdout: "out\n", Stderr: "err\n", ExitCode: 4}, res)
	assert.False(t, reg.Contains("p1"))

	calls := hist.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, ports.OutcomeCompleted, calls[0].outcome)
	require.NotNil(t, calls[0].exitCode)
	assert.Equal(t, 4, *calls[0].exitCode)
}

func TestRun_WorkingDirectory(t *testing.T) {
	r, _, _ := newTestRunner(t)
	dir := t.TempDir()

	res, err := r.Run(context.Background(), "p1", "pwd -P", dir)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.NotEmpty(t, res.Stdout)
}

func TestRun_LossyUTF8(t *testing.T) {
	r, _, _ := newTestRunner(t)

	res, err := r.Run(context.Background(), "p1", `printf 'a\377b'`, "")
	require.NoError(t, err)
	assert.Equal(t, "a�b", res.Stdout)
}

func TestRun_KillMidFlight(t *testing.T) {
	r, reg, hist := newTestRunner(t)

	done := make(chan *Result, 1)
	go func() {
		res, err := r.Run(context.Background(), "job", "sleep 30", "")
		assert.NoError(t, err)
		done <- res
	}()

	testutil.Eventually(t, 2*time.Second, func() bool { return reg.Contains("job") }, "job registered")
	assert.True(t, r.Kill("job"))

	select {
	case res := <-done:
		assert.Equal(t, &Result{Stdout: "", Stderr: "^C", ExitCode: 130}, res)
	case <-time.After(5 * time.Second):
		t.Fatal("killed job did not return")
	}
	assert.False(t, reg.Contains("job"))

	calls := hist.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, ports.OutcomeKilled, calls[0].outcome)
}

func TestKill_UnknownIDIsHarmless(t *testing.T) {
	r, reg, _ := newTestRunner(t)

	done := make(chan *Result, 1)
	go func() {
		res, _ := r.Run(context.Background(), "other", "sleep 0.3; echo fine", "")
		done <- res
	}()
	testutil.Eventually(t, 2*time.Second, func() bool { return reg.Contains("other") }, "job registered")

	assert.True(t, r.Kill("nobody"))
	assert.Equal(t, []string{"other"}, r.Running())

	select {
	case res := <-done:
		assert.Equal(t, "fine\n", res.Stdout)
		assert.Equal(t, 0, res.ExitCode)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}
}

func TestRun_EntryReplacedReportsTerminated(t *testing.T) {
	r, reg, hist := newTestRunner(t)

	first := make(chan *Result, 1)
	go func() {
		res, _ := r.Run(context.Background(), "dup", "sleep 0.5", "")
		first <- res
	}()
	testutil.Eventually(t, 2*time.Second, func() bool { return reg.Contains("dup") }, "first job registered")

	second, err := r.Run(context.Background(), "dup", "echo second", "")
	require.NoError(t, err)
	assert.Equal(t, "second\n", second.Stdout)

	select {
	case res := <-first:
		assert.Equal(t, &Result{Stdout: "", Stderr: "Process terminated", ExitCode: -1}, res)
	case <-time.After(5 * time.Second):
		t.Fatal("replaced job did not return")
	}

	var outcomes []ports.RunOutcome
	for _, c := range hist.calls() {
		outcomes = append(outcomes, c.outcome)
	}
	assert.ElementsMatch(t, []ports.RunOutcome{ports.OutcomeCompleted, ports.OutcomeTerminated}, outcomes)
}

func TestRun_ContextCancel(t *testing.T) {
	r, reg, _ := newTestRunner(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, "slow", "sleep 30", "")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, reg.Contains("slow"))
}

func TestRun_Errors(t *testing.T) {
	reg := process.NewRegistry("jobs")

	r := NewRunner(Config{}, reg, nil)
	_, err := r.Run(context.Background(), "p", "   ", "")
	assert.ErrorIs(t, err, domain.ErrEmptyCommand)

	missing := NewRunner(Config{Shell: pathutil.Shell{Program: "/no/such/shell", Flag: "-c"}}, reg, nil)
	_, err = missing.Run(context.Background(), "p", "true", "")
	var spawnErr *domain.SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Contains(t, err.Error(), "failed to spawn command")
	assert.False(t, reg.Contains("p"))
}
