package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(DefaultChannelThreshold), cfg.Upload.ChannelThreshold)
	assert.Equal(t, int64(DefaultMaxFileSize), cfg.Upload.MaxFileSize)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.True(t, cfg.Connection.AutoReconnect)
	assert.Greater(t, cfg.Connection.HeartbeatTimeout, cfg.Connection.HeartbeatInterval)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MEDIA_CHANNEL_THRESHOLD", "2048")
	t.Setenv("MEDIA_RECONNECT_DELAY", "500ms")
	t.Setenv("MEDIA_ALLOWED_MIME_TYPES", "image/png, image/jpeg")
	t.Setenv("CACHE_BACKEND", "redis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(2048), cfg.Upload.ChannelThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Connection.ReconnectDelay)
	assert.Equal(t, []string{"image/png", "image/jpeg"}, cfg.Upload.AllowedMimeTypes)
	assert.Equal(t, "redis", cfg.Cache.Backend)
}

func TestValidateRejectsMalformedConfig(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	t.Run("zero threshold", func(t *testing.T) {
		cfg := base()
		cfg.Upload.ChannelThreshold = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("ceiling below threshold", func(t *testing.T) {
		cfg := base()
		cfg.Upload.MaxFileSize = cfg.Upload.ChannelThreshold - 1
		assert.Error(t, cfg.Validate())
	})

	t.Run("heartbeat timeout below interval", func(t *testing.T) {
		cfg := base()
		cfg.Connection.HeartbeatTimeout = cfg.Connection.HeartbeatInterval / 2
		assert.Error(t, cfg.Validate())
	})

	t.Run("disabled heartbeat timeout is allowed", func(t *testing.T) {
		cfg := base()
		cfg.Connection.HeartbeatTimeout = 0
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown cache backend", func(t *testing.T) {
		cfg := base()
		cfg.Cache.Backend = "memcached"
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative reconnect attempts", func(t *testing.T) {
		cfg := base()
		cfg.Connection.MaxReconnectAttempts = -1
		assert.Error(t, cfg.Validate())
	})
}
