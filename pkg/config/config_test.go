package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 24*time.Hour, cfg.API.Freshness)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Len(t, cfg.API.FallbackURLs, 3)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `api:
  tunnel_url: https://family.example.trycloudflare.com
  fallback_urls:
    - http://192.168.1.20:8080
  timeout: 2s
sync:
  interval: 1m
store:
  backend: sqlite
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	t.Setenv("FAMTASKS_API_CHECK_TIMEOUT", "750ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://family.example.trycloudflare.com", cfg.API.TunnelURL)
	assert.Equal(t, []string{"http://192.168.1.20:8080"}, cfg.API.FallbackURLs)
	assert.Equal(t, 2*time.Second, cfg.API.Timeout)
	assert.Equal(t, 750*time.Millisecond, cfg.API.CheckTimeout)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 24*time.Hour, cfg.API.Freshness)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: redis\n"), 0600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "famtasks", "config.yaml")
	cfg := Default()
	cfg.API.TunnelURL = "https://tunnel.example.com"
	cfg.Calendar.Enabled = true
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
