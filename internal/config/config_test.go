package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/taskdemo/internal/identity"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, identity.DefaultCookieName, cfg.Session.CookieName)
	assert.Equal(t, identity.DefaultMaxAge, cfg.Session.MaxAge)
	assert.Equal(t, 30*time.Second, cfg.Views.CacheTTL)
	assert.True(t, cfg.Metrics.Enabled)
	assert.NotEmpty(t, cfg.Database.Path)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskdemo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9999"
  mode: debug
database:
  path: /tmp/demo.db
  busy_timeout_ms: 250
session:
  max_age: 1h
categorizer:
  url: http://ml.local
  timeout: 2s
log:
  format: json
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, "http://ml.local", cfg.Categorizer.URL)
	assert.Equal(t, 2*time.Second, cfg.Categorizer.Timeout)
	assert.Equal(t, "json", cfg.Log.Format)

	// Unset keys keep their defaults
	assert.Equal(t, identity.DefaultHeaderName, cfg.Session.HeaderName)

	opts := cfg.DBOptions()
	assert.Equal(t, "/tmp/demo.db", opts.Path)
	assert.Equal(t, 250*time.Millisecond, opts.BusyTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TASKDEMO_SERVER_ADDR", ":7070")
	t.Setenv("TASKDEMO_SESSION_SECURE", "true")
	t.Setenv("TASKDEMO_VIEWS_CACHE_TTL", "5s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.True(t, cfg.Session.Secure)
	assert.Equal(t, 5*time.Second, cfg.Views.CacheTTL)
	assert.True(t, cfg.CookieConfig().Secure)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Server.Mode = "production"
	cfg.Log.Format = "xml"
	cfg.Session.MaxAge = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.mode")
	assert.Contains(t, err.Error(), "log.format")
	assert.Contains(t, err.Error(), "session.max_age")
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "taskdemo.yaml")
	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_age: 168h0m0s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, identity.DefaultMaxAge, cfg.Session.MaxAge)

	assert.Error(t, WriteDefault(path), "existing files are not overwritten")
}
