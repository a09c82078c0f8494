package store

import (
	"context"
	"errors"

	"pulse/internal/consent/models"
)

// ErrNotFound is returned by Get when no record has been persisted yet.
var ErrNotFound = errors.New("consent record not found")

// Error Contract:
// All store methods follow this error pattern:
// - Get returns ErrNotFound when no record exists
// - Return nil for successful operations
// - Return wrapped errors for infrastructure failures (disk, cookie jar, etc.)
//
// The manager treats any returned error as a persistence failure, never as a
// consent-state failure: its in-memory record stays authoritative.

// Store is the single persistence contract consumed by the consent manager.
// Implementations decide the medium (memory, file, cookie-backed HTTP, ...).
type Store interface {
	Get(ctx context.Context) (*models.Record, error)
	Set(ctx context.Context, record models.Record) error
	Remove(ctx context.Context) error
}
