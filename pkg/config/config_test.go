package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100*time.Millisecond, cfg.Engine.DetectionInterval)
	assert.Equal(t, 10*time.Second, cfg.Engine.GlobalCooldown)
	assert.Equal(t, 150*time.Millisecond, cfg.Engine.Wink.MinHold)
	assert.Equal(t, 800*time.Millisecond, cfg.Engine.Wink.MaxHold)
	assert.Equal(t, 100, cfg.Attention.HistorySize)
}

func TestLoad_UsesDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Server.Address)
	assert.Equal(t, TransportSocket, cfg.Signal.Transport)
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
signal:
  transport: mock
  mock_join_delay: 500ms
engine:
  look_threshold: 0.7
  wink:
    onset: 0.6
    release: 0.2
    min_hold: 100ms
    max_hold: 900ms
    cooldown: 1s
logging:
  level: debug
`)
	t.Setenv("XSIMWINK_LOG_LEVEL", "warn")
	t.Setenv("XSIMWINK_MODEL_ADDRESS", "localhost:50051")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, TransportMock, cfg.Signal.Transport)
	assert.Equal(t, 500*time.Millisecond, cfg.Signal.MockJoinDelay)
	assert.Equal(t, 0.7, cfg.Engine.LookThreshold)
	assert.Equal(t, 0.6, cfg.Engine.Wink.Onset)
	assert.Equal(t, time.Second, cfg.Engine.Wink.Cooldown)
	assert.Equal(t, 0.5, cfg.Engine.TongueOut.Onset, "untouched sections keep defaults")
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "localhost:50051", cfg.Engine.ModelAddress)
}

func TestLoad_RejectsInvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "engine: [unterminated")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown transport", func(c *Config) { c.Signal.Transport = "carrier-pigeon" }},
		{"socket without url", func(c *Config) { c.Signal.URL = "" }},
		{"redis transport without redis", func(c *Config) { c.Signal.Transport = TransportRedis }},
		{"pong not after ping", func(c *Config) { c.Signal.PongTimeout = c.Signal.PingInterval }},
		{"zero connect attempts", func(c *Config) { c.Signal.ConnectAttempts = 0 }},
		{"half port range", func(c *Config) { c.WebRTC.PortRange.Min = 50000 }},
		{"inverted port range", func(c *Config) { c.WebRTC.PortRange.Min, c.WebRTC.PortRange.Max = 50010, 50000 }},
		{"frame slower than detection", func(c *Config) { c.Engine.FrameInterval = time.Second }},
		{"look threshold out of range", func(c *Config) { c.Engine.LookThreshold = 1.2 }},
		{"wink release above onset", func(c *Config) { c.Engine.Wink.Release = 0.6 }},
		{"wink hold window inverted", func(c *Config) { c.Engine.Wink.MaxHold = 100 * time.Millisecond }},
		{"interest thresholds inverted", func(c *Config) { c.Attention.HighInterest = 0.1 }},
		{"history size zero", func(c *Config) { c.Attention.HistorySize = 0 }},
		{"auth without secret", func(c *Config) { c.Auth.Required = true; c.Auth.JWTSecret = "" }},
		{"rate limit burst zero", func(c *Config) { c.RateLimiting.WebSocket.Burst = 0 }},
		{"http rate zero", func(c *Config) { c.RateLimiting.HTTP.RequestsPerSecond = 0 }},
		{"redis without pool", func(c *Config) { c.Redis.Enabled = true; c.Redis.PoolSize = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	cfg.RateLimiting.WebSocket.Burst = 0
	assert.NoError(t, cfg.Validate())
}
