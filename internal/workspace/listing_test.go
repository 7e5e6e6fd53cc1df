package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestListDirectory_HiddenSkippedCaseInsensitiveOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{".hidden", "Banana", "apple"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	entries, err := ListDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "Banana"}, names(entries))
	assert.Equal(t, filepath.Join(dir, "apple"), entries[0].Path)
	assert.False(t, entries[0].IsDir)
}

func TestListDirectory_DirectoriesFirst(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Z.md"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "Docs"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))

	entries, err := ListDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Docs", "src", "a.txt", "Z.md"}, names(entries))
	assert.True(t, entries[0].IsDir)
	assert.True(t, entries[1].IsDir)
	assert.False(t, entries[2].IsDir)
}

func TestListDirectory_Missing(t *testing.T) {
	_, err := ListDirectory(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHomeDir(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	if home, err := os.UserHomeDir(); err != nil || home != "/home/tester" {
		t.Skip("home directory not taken from HOME on this platform")
	}

	home, err := HomeDir()
	require.NoError(t, err)
	assert.Equal(t, "/home/tester", home)
}
