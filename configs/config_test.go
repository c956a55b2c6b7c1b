package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("POSTGRES_URI", "postgres://localhost/posts")
	t.Setenv("SECRET_KEY", "0123456789abcdef")

	cfg := LoadConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "0 0 * * * *", cfg.Scheduler.Spec)
	assert.Equal(t, "mark_done", cfg.Scheduler.StatusPolicy)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.CatchUpWindow)
	assert.Equal(t, 5*1024*1024, cfg.Twitter.ChunkSize)
	assert.Equal(t, 5*time.Second, cfg.Twitter.PollInterval)
	assert.Equal(t, 60, cfg.Twitter.MaxPollAttempts)
	assert.Equal(t, int64(50*1024*1024), cfg.Twitter.MaxMediaBytes)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SCHEDULER_STATUS_POLICY", "retry")
	t.Setenv("SCHEDULER_MAX_ATTEMPTS", "5")
	t.Setenv("SCHEDULER_RETRY_BASE_DELAY", "15m")
	t.Setenv("TWITTER_POLL_INTERVAL", "not-a-duration")

	cfg := LoadConfig()
	assert.Equal(t, "retry", cfg.Scheduler.StatusPolicy)
	assert.Equal(t, 5, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.RetryBaseDelay)
	assert.Equal(t, 5*time.Second, cfg.Twitter.PollInterval)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := LoadConfig()
		c.PostgresURI = "postgres://localhost/posts"
		c.SecretKey = "0123456789abcdef0123456789abcdef"
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no database", func(c *Config) { c.PostgresURI = "" }},
		{"no secret", func(c *Config) { c.SecretKey = "" }},
		{"bad secret length", func(c *Config) { c.SecretKey = "short" }},
		{"unknown policy", func(c *Config) { c.Scheduler.StatusPolicy = "sometimes" }},
		{"zero chunk", func(c *Config) { c.Twitter.ChunkSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
