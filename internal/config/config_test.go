package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "backend:\n  base_url: \"http://backend:3000\"\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://backend:3000", cfg.Backend.BaseURL)
	assert.Equal(t, 60, cfg.Sync.FlushInterval)
	assert.Equal(t, 15, cfg.Liveness.DeviceThreshold)
	assert.Equal(t, 15, cfg.Liveness.AgentThreshold)
	assert.Equal(t, 60, cfg.Liveness.CheckInterval)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Server.Enabled)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, "sync:\n  flush_interval: 30\n")
	t.Setenv("SYNC_AGENT_FLUSH_INTERVAL", "10")
	t.Setenv("SYNC_AGENT_DEVICE_THRESHOLD", "5")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Sync.FlushInterval)
	assert.Equal(t, 5, cfg.Liveness.DeviceThreshold)
}

func TestLoadConfigValidation(t *testing.T) {
	path := writeConfig(t, "sync:\n  flush_interval: -1\n")

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
