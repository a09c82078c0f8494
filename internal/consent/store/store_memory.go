package store

import (
	"context"
	"sync"

	"pulse/internal/consent/models"
)

// InMemoryStore keeps the consent record in process memory. It is the default
// for the relay and for tests; nothing survives a restart.
type InMemoryStore struct {
	mu     sync.RWMutex
	record *models.Record
}

// NewInMemory constructs an empty in-memory consent store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Get(_ context.Context) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.record == nil {
		return nil, ErrNotFound
	}
	copyRecord := s.record.Clone()
	return &copyRecord, nil
}

func (s *InMemoryStore) Set(_ context.Context, record models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyRecord := record.Clone()
	s.record = &copyRecord
	return nil
}

func (s *InMemoryStore) Remove(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = nil
	return nil
}
