// Package workspace answers filesystem questions for clients: directory
// listings for the project picker and the user's home directory.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/brianly1003/cquest/internal/domain"
)

// Entry is one item of a directory listing.
type Entry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
}

// ListDirectory lists path. Hidden entries (names starting with ".") are
// skipped. Directories come before files; within each group names are
// ordered case-insensitively.
func ListDirectory(path string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(path, name)
		entries = append(entries, Entry{
			Name:  name,
			Path:  full,
			IsDir: isDir(de, full),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries, nil
}

// isDir follows symlinks so a link to a directory sorts with directories.
func isDir(de os.DirEntry, full string) bool {
	if de.Type()&os.ModeSymlink == 0 {
		return de.IsDir()
	}
	info, err := os.Stat(full)
	return err == nil && info.IsDir()
}

// HomeDir returns the current user's home directory.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", domain.ErrHomeDirNotFound
	}
	return home, nil
}
