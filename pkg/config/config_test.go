package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, []string{"image", "font", "media"}, cfg.Browser.BlockedResources)
	assert.Equal(t, time.Minute, cfg.Browser.HealthCheckInterval)
	assert.Equal(t, 3, cfg.Monitor.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Monitor.BaseDelay)
	assert.Equal(t, 3, cfg.Monitor.FallbackCandidates)
	assert.Equal(t, "*/5 7-19 * * 1-6", cfg.Monitor.PeakSchedule)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apptwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
log:
  level: debug
  pretty: true
browser:
  headless: false
  user_agent: "Mozilla/5.0 test"
monitor:
  max_attempts: 5
  base_delay: 1s
  peak_schedule: "*/2 * * * *"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "Mozilla/5.0 test", cfg.Browser.UserAgent)
	assert.Equal(t, 5, cfg.Monitor.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Monitor.BaseDelay)
	assert.Equal(t, "*/2 * * * *", cfg.Monitor.PeakSchedule)

	// Untouched values keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Monitor.SelectTimeout)
	assert.True(t, cfg.Browser.InstallOnStart)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APPTWATCH_SERVER_PORT", "7070")
	t.Setenv("APPTWATCH_MONITOR_MAX_ATTEMPTS", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Monitor.MaxAttempts)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
