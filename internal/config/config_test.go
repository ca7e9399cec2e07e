package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:8001/api", cfg.Backend.Endpoint)
	assert.Equal(t, 2*time.Second, cfg.Polling.Interval)
	assert.Equal(t, 5, cfg.Polling.MaxConsecutiveErrors)
	assert.True(t, cfg.Refresh.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default().Backend.Endpoint, cfg.Backend.Endpoint)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sentinel.yaml")
		content := `backend:
  endpoint: https://sec.example.com/api
polling:
  interval: 500ms
  max_consecutive_errors: 3
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "https://sec.example.com/api", cfg.Backend.Endpoint)
		assert.Equal(t, 500*time.Millisecond, cfg.Polling.Interval)
		assert.Equal(t, 3, cfg.Polling.MaxConsecutiveErrors)
		// Untouched sections keep their defaults.
		assert.Equal(t, 30*time.Second, cfg.Backend.RequestTimeout)
	})

	t.Run("malformed yaml is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("backend: ["), 0644))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "invalid.yaml")
		content := `polling:
  interval: -1s
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sentinel.yaml")

	cfg := Default()
	cfg.Backend.Endpoint = "http://10.1.2.3:8001/api"
	cfg.Refresh.AlertsInterval = 7 * time.Second
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Backend.Endpoint, loaded.Backend.Endpoint)
	assert.Equal(t, cfg.Refresh.AlertsInterval, loaded.Refresh.AlertsInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty endpoint", func(c *Config) { c.Backend.Endpoint = "" }},
		{"relative endpoint", func(c *Config) { c.Backend.Endpoint = "localhost:8001" }},
		{"zero request timeout", func(c *Config) { c.Backend.RequestTimeout = 0 }},
		{"zero list limit", func(c *Config) { c.Backend.ListLimit = 0 }},
		{"zero poll interval", func(c *Config) { c.Polling.Interval = 0 }},
		{"zero error bound", func(c *Config) { c.Polling.MaxConsecutiveErrors = 0 }},
		{"zero refresh interval while enabled", func(c *Config) { c.Refresh.DevicesInterval = 0 }},
		{"sub-second refresh interval while enabled", func(c *Config) { c.Refresh.AlertsInterval = 500 * time.Millisecond }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "logfmt" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("disabled refresh skips interval checks", func(t *testing.T) {
		cfg := Default()
		cfg.Refresh.Enabled = false
		cfg.Refresh.DevicesInterval = 0
		assert.NoError(t, cfg.Validate())
	})
}
