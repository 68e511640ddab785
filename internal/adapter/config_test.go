package adapter

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, "bolt", cfg.Store.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.Sync.GCAge)
	assert.Equal(t, 2, cfg.Sync.GCMinRetries)
	assert.Equal(t, def.API.ProbePath, cfg.API.ProbePath)
	assert.True(t, cfg.IsConfigured())
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tsoam.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://church.example/api
  token_file: ~/tsoam/token
store:
  driver: sqlite
  path: /var/lib/tsoam/offline.sqlite
sync:
  interval: 90s
modules:
  visitors: church/visitors
logging:
  level: debug
`), 0600))

	t.Setenv("TSOAM_SYNC_MAX_RETRIES", "5")
	t.Setenv("TSOAM_API_TOKEN", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://church.example/api", cfg.API.BaseURL)
	assert.Equal(t, "from-env", cfg.API.Token)
	assert.NotContains(t, cfg.API.TokenFile, "~")
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 90*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, "church/visitors", cfg.Modules["visitors"])
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched sections keep their defaults
	assert.Equal(t, 24*time.Hour, cfg.Sync.GCAge)
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [unclosed"), 0600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.BaseURL = "https://church.example/api"
	cfg.Sync.Interval = 2 * time.Minute
	cfg.Modules = map[string]string{"visitors": "church/visitors"}

	path, err := SaveConfig(cfg, filepath.Join(t.TempDir(), "nested", "config.yaml"))
	require.NoError(t, err)

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.API.BaseURL, loaded.API.BaseURL)
	assert.Equal(t, 2*time.Minute, loaded.Sync.Interval)
	assert.Equal(t, "church/visitors", loaded.Modules["visitors"])
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestNewLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("shown", "module", "members")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"module":"members"`)
}

func TestSetupLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tsoam.log")
	logger, closer, err := SetupLogger(&LoggingConfig{File: path, Level: "info", MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Info("sync complete", "succeeded", 2)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sync complete")
}
