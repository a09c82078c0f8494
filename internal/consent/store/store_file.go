package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"pulse/internal/consent/models"
)

// FileStore persists the consent record as a JSON file. It exists for
// long-lived embedders (kiosks, desktop shells) that want the decision to
// survive restarts without pulling in a database.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFile constructs a file-backed consent store at the given path. The
// parent directory must already exist.
func NewFile(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Get(_ context.Context) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read consent file: %w", err)
	}
	var record models.Record
	if err := json.Unmarshal(data, &record); err != nil {
		// Corrupt file is a miss, not a fatal error: the manager falls back
		// to its default-resolution chain.
		return nil, ErrNotFound
	}
	return &record, nil
}

func (s *FileStore) Set(_ context.Context, record models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode consent record: %w", err)
	}
	// Write-then-rename so a crash mid-write never leaves a torn record.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write consent file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace consent file: %w", err)
	}
	return nil
}

func (s *FileStore) Remove(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove consent file: %w", err)
	}
	return nil
}

// Path returns the backing file location, mainly for logging.
func (s *FileStore) Path() string {
	return filepath.Clean(s.path)
}
