package config

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvKey, "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 72*time.Hour, cfg.OfferTTL)
	assert.Equal(t, 2*time.Minute, cfg.ExpirySweepInterval)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.Equal(t, 2*time.Second, cfg.LockWaitTimeout)
	assert.Equal(t, 5*time.Minute, cfg.ListingCacheTTL)
	assert.Equal(t, 4, cfg.NotifyWorkers)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, 600, cfg.IPRateLimitPerMinute)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvKey, "production")
	t.Setenv(JWTSecretKey, "s3cret")
	t.Setenv(OfferTTLKey, "24h")
	t.Setenv(ExpirySweepIntervalKey, "30s")
	t.Setenv(NotifyWorkersKey, "8")
	t.Setenv(NewRelicEnabledKey, "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.OfferTTL)
	assert.Equal(t, 30*time.Second, cfg.ExpirySweepInterval)
	assert.Equal(t, 8, cfg.NotifyWorkers)
	assert.True(t, cfg.NewRelicEnabled)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"production without secret", map[string]string{EnvKey: "production", JWTSecretKey: ""}},
		{"lock ttl below wait", map[string]string{EnvKey: "development", LockTTLKey: "1s", LockWaitTimeoutKey: "2s"}},
		{"webhook without secret", map[string]string{EnvKey: "development", WebhookURLKey: "http://hooks", WebhookSecretKey: ""}},
		{"zero workers", map[string]string{EnvKey: "development", NotifyWorkersKey: "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestSetupLogging(t *testing.T) {
	defer log.SetLevel(log.GetLevel())

	SetupLogging(&Config{Env: "production", LogLevel: "debug"})
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)

	SetupLogging(&Config{Env: "development", LogLevel: "nonsense"})
	assert.Equal(t, log.InfoLevel, log.GetLevel())
	assert.IsType(t, &log.TextFormatter{}, log.StandardLogger().Formatter)
}
