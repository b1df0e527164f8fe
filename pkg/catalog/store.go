package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Store persists catalog snapshots to disk so discovery state survives
// daemon restarts
type Store struct {
	path string
}

// snapshotData is the on-disk snapshot format
type snapshotData struct {
	Entries []*Entry `json:"entries"`
	Version string   `json:"version"`
	SavedAt int64    `json:"savedAt"`
}

// NewStore creates a snapshot store at the given path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the snapshot, returning an empty slice when none exists yet
func (s *Store) Load() ([]*Entry, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		log.Info().Str("path", s.path).Msg("Catalog snapshot does not exist, starting fresh")
		return []*Entry{}, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog snapshot: %w", err)
	}

	var snapshot snapshotData
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse catalog snapshot: %w", err)
	}

	log.Info().
		Str("path", s.path).
		Int("entryCount", len(snapshot.Entries)).
		Msg("Catalog snapshot loaded")

	return snapshot.Entries, nil
}

// Save writes the snapshot atomically via a temp file and rename
func (s *Store) Save(entries []*Entry) error {
	snapshot := snapshotData{
		Entries: entries,
		Version: "1.0",
		SavedAt: time.Now().Unix(),
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary snapshot: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		return fmt.Errorf("failed to rename temporary snapshot: %w", err)
	}

	log.Debug().
		Str("path", s.path).
		Int("entryCount", len(entries)).
		Msg("Catalog snapshot saved")

	return nil
}
