package appdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianly1003/cquest/internal/domain/events"
	"github.com/brianly1003/cquest/internal/testutil"
)

func TestStore_LoadMissingReturnsNil(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "never-created"), nil)

	data, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestStore_SaveThenLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "app")
	pub := testutil.NewRecordingPublisher()
	s := NewStore(dir, pub)

	require.NoError(t, s.Save(`{"quests":[1,2]}`))
	require.NoError(t, s.Save(`{"quests":[3]}`))

	data, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, `{"quests":[3]}`, *data)

	raw, err := os.ReadFile(filepath.Join(dir, "data.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"quests":[3]}`, string(raw))

	_, err = os.Stat(filepath.Join(dir, "data.json.tmp"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	saved := pub.Payloads(events.EventTypeDataSaved)
	require.Len(t, saved, 2)
	assert.Equal(t, events.DataSavedPayload{Path: s.Path(), Bytes: len(`{"quests":[3]}`)}, saved[1])
}

func TestStore_EmptyStringIsStored(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	require.NoError(t, s.Save(""))

	data, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "", *data)
}
