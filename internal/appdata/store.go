// Package appdata persists the client's application data: one opaque
// string written whole to <data dir>/data.json.
package appdata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/cquest/internal/domain/events"
	"github.com/brianly1003/cquest/internal/domain/ports"
)

// FileName is the name of the data file inside the data directory.
const FileName = "data.json"

// Store reads and writes the data file.
type Store struct {
	path      string
	publisher ports.EventPublisher
	mu        sync.Mutex
}

// NewStore creates a Store rooted at dataDir. publisher may be nil.
func NewStore(dataDir string, publisher ports.EventPublisher) *Store {
	return &Store{
		path:      filepath.Join(dataDir, FileName),
		publisher: publisher,
	}
}

// Path returns the data file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored data, or nil if nothing was saved yet.
func (s *Store) Load() (*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}
	str := string(data)
	return &str, nil
}

// Save replaces the stored data, creating the data directory if needed.
func (s *Store) Save(data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Write to a sibling temp file first so a crash never leaves a torn file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(data), 0o600); err != nil {
		return fmt.Errorf("failed to write data file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write data file: %w", err)
	}

	log.Debug().Str("path", s.path).Int("bytes", len(data)).Msg("application data saved")
	if s.publisher != nil {
		s.publisher.Publish(events.NewDataSavedEvent(s.path, len(data)))
	}
	return nil
}
