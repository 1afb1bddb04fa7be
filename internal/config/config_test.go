package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "goingest", cfg.App.Name)
	assert.Equal(t, QueueBackendFilesystem, cfg.Queue.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.Equal(t, "goingest-entities", cfg.Index.IndexName)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
}

func TestLoadFileOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
queue:
  backend: redis
  redis_addr: 10.0.0.5:6379
  visibility_timeout: 90s
scheduler:
  interval: 30s
`))
	require.NoError(t, err)

	assert.Equal(t, QueueBackendRedis, cfg.Queue.Backend)
	assert.Equal(t, "10.0.0.5:6379", cfg.Queue.RedisAddr)
	assert.Equal(t, 90*time.Second, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	_, err := Load(writeConfig(t, `
queue:
  backend: sqs
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue backend")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfig(t, ""))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing queue dir", func(c *Config) { c.Queue.Dir = "" }},
		{"missing redis addr", func(c *Config) {
			c.Queue.Backend = QueueBackendRedis
			c.Queue.RedisAddr = ""
		}},
		{"zero visibility", func(c *Config) { c.Queue.VisibilityTimeout = 0 }},
		{"zero retries", func(c *Config) { c.Queue.MaxRetries = 0 }},
		{"missing db host", func(c *Config) { c.Database.Host = "" }},
		{"missing index addresses", func(c *Config) { c.Index.Addresses = nil }},
		{"missing bucket", func(c *Config) { c.ObjectStore.Bucket = "" }},
		{"zero scheduler interval", func(c *Config) { c.Scheduler.Interval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestQueueBackendIsValid(t *testing.T) {
	assert.True(t, QueueBackendFilesystem.IsValid())
	assert.True(t, QueueBackendRedis.IsValid())
	assert.False(t, QueueBackend("sqs").IsValid())
	assert.False(t, QueueBackend("").IsValid())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
