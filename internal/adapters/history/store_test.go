package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianly1003/cquest/internal/domain/ports"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := s.RunStarted(ctx, ports.RunKindShell, "job-1", "echo hi", "/tmp")
	require.NotEmpty(t, id)

	records, err := s.List(ctx, ports.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ports.OutcomeRunning, records[0].Outcome)
	assert.Nil(t, records[0].EndedAt)

	code := 0
	s.RunEnded(ctx, id, ports.OutcomeCompleted, &code)

	records, err = s.List(ctx, ports.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, id, r.ID)
	assert.Equal(t, ports.RunKindShell, r.Kind)
	assert.Equal(t, "job-1", r.EntityID)
	assert.Equal(t, "echo hi", r.Command)
	assert.Equal(t, "/tmp", r.WorkDir)
	assert.Equal(t, ports.OutcomeCompleted, r.Outcome)
	require.NotNil(t, r.EndedAt)
	require.NotNil(t, r.ExitCode)
	assert.Equal(t, 0, *r.ExitCode)
	assert.False(t, r.EndedAt.Before(r.StartedAt))
}

func TestStore_ListFilterAndOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.RunStarted(ctx, ports.RunKindShell, "a", "true", "")
	svc := s.RunStarted(ctx, ports.RunKindService, "web", "serve", "")
	s.RunStarted(ctx, ports.RunKindShell, "b", "false", "")
	s.RunEnded(ctx, svc, ports.OutcomeStopped, nil)

	all, err := s.List(ctx, ports.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].EntityID, "newest first")

	services, err := s.List(ctx, ports.HistoryFilter{Kind: ports.RunKindService})
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, ports.OutcomeStopped, services[0].Outcome)
	assert.Nil(t, services[0].ExitCode)

	one, err := s.List(ctx, ports.HistoryFilter{Kind: ports.RunKindShell, EntityID: "a"})
	require.NoError(t, err)
	require.Len(t, one, 1)

	limited, err := s.List(ctx, ports.HistoryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStore_ReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.db")
	s, err := Open(path)
	require.NoError(t, err)
	s.RunStarted(context.Background(), ports.RunKindService, "db", "postgres", "")
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	records, err := s.List(context.Background(), ports.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
