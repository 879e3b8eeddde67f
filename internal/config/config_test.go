package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 60*time.Second, cfg.Scheduler.Interval.Std())
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 12*time.Hour, cfg.Source.Freshness.Std())
	assert.Equal(t, ":8000", cfg.HTTP.Addr)
	assert.Equal(t, []string{"/home"}, cfg.Source.Pages)
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
scheduler:
  interval: 90s
  jitter: 0.2
pipeline:
  workers: 2
source:
  pages: ["/home", "/i/lists/123"]
notifications:
  telegram:
    chatId: "42"
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Scheduler.Interval.Std())
	assert.InDelta(t, 0.2, cfg.Scheduler.Jitter, 1e-9)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, "42", cfg.Notifications.Telegram.ChatID)
	assert.Equal(t, []string{"/home", "/i/lists/123"}, cfg.Source.Pages)
	// untouched keys keep defaults
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
}

func TestLoadFileTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
[database]
driver = "postgres"
dsn = "postgres://localhost/signals"

[pipeline]
retryWindow = "6h"
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 6*time.Hour, cfg.Pipeline.RetryWindow.Std())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(pollIntervalEnv, "120")
	t.Setenv(telegramTokenEnv, "token")
	t.Setenv(twitterUserEnv, "alice")
	t.Setenv(logLevelEnv, "warn")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, 120*time.Second, cfg.Scheduler.Interval.Std())
	assert.Equal(t, "token", cfg.Notifications.Telegram.BotToken)
	assert.Equal(t, "alice", cfg.Source.Username)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	cfg.Database.Driver = "mysql"
	cfg.Scheduler.Jitter = 1.5
	cfg.Pipeline.Workers = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "scheduler.jitter")
	assert.Contains(t, err.Error(), "pipeline.workers")
}

func TestLoadFileBadDuration(t *testing.T) {
	path := writeFile(t, "config.yaml", "scheduler:\n  interval: soon\n")
	_, err := LoadFile(path)
	require.Error(t, err)
}
