package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/consent/models"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "consent.json")
	st := NewFile(path)

	_, err := st.Get(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	record := models.DefaultRecord(time.Now().UTC())
	record.Status = models.StatusPartial
	record.Categories[models.CategoryAnalytics] = true
	record.Version = "2025-01"
	require.NoError(t, st.Set(ctx, record))

	fetched, err := st.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartial, fetched.Status)
	assert.True(t, fetched.Categories[models.CategoryAnalytics])
	assert.Equal(t, "2025-01", fetched.Version)

	require.NoError(t, st.Remove(ctx))
	_, err = st.Get(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	// Removing an already-removed file is fine
	require.NoError(t, st.Remove(ctx))
}

func TestFileStoreCorruptFileIsAMiss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consent.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	st := NewFile(path)
	_, err := st.Get(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}
