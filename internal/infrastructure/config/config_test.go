package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LICENSEGATE_ADMIN_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, 60*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.Equal(t, 60*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, time.Second, cfg.RateLimitDelay)
	assert.False(t, cfg.TrustProxyHeaders)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Contains(t, cfg.DatabaseURL, "licensegate")
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, time.Duration(0), cfg.SweepInterval)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LICENSEGATE_ADMIN_SECRET", "s3cret")
	t.Setenv("LICENSEGATE_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("LICENSEGATE_TOKEN_TTL", "15m")
	t.Setenv("LICENSEGATE_RATE_LIMIT_PER_MINUTE", "5")
	t.Setenv("LICENSEGATE_RATE_LIMIT_DELAY", "0s")
	t.Setenv("LICENSEGATE_TRUST_PROXY_HEADERS", "true")
	t.Setenv("LICENSEGATE_STORE", "memory")
	t.Setenv("LICENSEGATE_REDIS_ADDR", "localhost:6379")
	t.Setenv("LICENSEGATE_REDIS_DB", "2")
	t.Setenv("LICENSEGATE_SWEEP_INTERVAL", "5m")
	t.Setenv("LICENSEGATE_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 5, cfg.RateLimitPerMinute)
	assert.Equal(t, time.Duration(0), cfg.RateLimitDelay)
	assert.True(t, cfg.TrustProxyHeaders)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)

	level, _ := cfg.SlogLevel()
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("LICENSEGATE_ADMIN_SECRET", "")
	os.Unsetenv("LICENSEGATE_ADMIN_SECRET")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			AdminSecret:        "s3cret",
			TokenTTL:           time.Hour,
			RateLimitPerMinute: 60,
			RateLimitWindow:    time.Minute,
			RateLimitDelay:     time.Second,
			StoreConfig:        StoreConfig{Store: StoreMemory},
			LogLevel:           "info",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"blank secret", func(c *Config) { c.AdminSecret = "   " }, true},
		{"zero ttl", func(c *Config) { c.TokenTTL = 0 }, true},
		{"zero threshold", func(c *Config) { c.RateLimitPerMinute = 0 }, true},
		{"zero window", func(c *Config) { c.RateLimitWindow = 0 }, true},
		{"negative delay", func(c *Config) { c.RateLimitDelay = -time.Second }, true},
		{"unknown store", func(c *Config) { c.Store = "sqlite" }, true},
		{"postgres without url", func(c *Config) { c.Store = StorePostgres; c.DatabaseURL = "" }, true},
		{"negative sweep", func(c *Config) { c.SweepInterval = -time.Minute }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"negative redis db", func(c *Config) { c.RedisDB = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadStore_NoSecretNeeded(t *testing.T) {
	t.Setenv("LICENSEGATE_ADMIN_SECRET", "")
	os.Unsetenv("LICENSEGATE_ADMIN_SECRET")
	t.Setenv("LICENSEGATE_STORE", "memory")

	cfg, err := LoadStore()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store)

	t.Setenv("LICENSEGATE_STORE", "sqlite")
	_, err = LoadStore()
	assert.Error(t, err)
}
