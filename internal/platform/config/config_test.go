package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "pulse/pkg/domain-errors"
)

func TestLoadRequiresEndpoint(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidConfiguration))
}

func TestLoadDefaultsWithEnvEndpoint(t *testing.T) {
	t.Setenv("PULSE_ENDPOINT", "https://collect.example/v1/batch")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 256, cfg.QueueCapacity)
	assert.Equal(t, 10*time.Second, cfg.FlushInterval)
	assert.Equal(t, 64*1024, cfg.MaxBeaconBytes)
	assert.False(t, cfg.Compress)
}

func TestLoadYAMLFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint: https://file.example/batch
queue_capacity: 64
flush_interval: 30s
compress: true
`), 0o600))

	// Env wins over file
	t.Setenv("PULSE_QUEUE_CAPACITY", "128")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://file.example/batch", cfg.Endpoint)
	assert.Equal(t, 128, cfg.QueueCapacity)
	assert.Equal(t, 30*time.Second, cfg.FlushInterval)
	assert.True(t, cfg.Compress)
}

func TestLoadRejectsInvalidCapacity(t *testing.T) {
	t.Setenv("PULSE_ENDPOINT", "https://collect.example/v1/batch")
	t.Setenv("PULSE_QUEUE_CAPACITY", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidConfiguration))
}

func TestLoadRejectsUnreadableFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidConfiguration))
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidConfiguration))
}
