package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all subsystem configuration
type Config struct {
	Service    ServiceConfig
	Connection ConnectionConfig
	Upload     UploadConfig
	Cache      CacheConfig
}

// ServiceConfig holds client identity and logging settings
type ServiceConfig struct {
	ClientID        string
	LogLevel        string
	LogFormat       string
	ActivityLogSize int
}

// ConnectionConfig holds channel connection settings
type ConnectionConfig struct {
	ChannelURL           string
	BulkURL              string
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
	RequestTimeout       time.Duration
	HeartbeatInterval    time.Duration
	HeartbeatTimeout     time.Duration // 0 disables dead-peer detection
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int // 0 = unlimited
	AutoReconnect        bool
}

// UploadConfig holds transport selection and validation settings
type UploadConfig struct {
	// Files below ChannelThreshold go over the channel, the rest over
	// the bulk endpoint. The decision is made once per task.
	ChannelThreshold int64
	MaxFileSize      int64
	AllowedMimeTypes []string // empty = allow all
}

// CacheConfig holds payload cache settings
type CacheConfig struct {
	Backend       string // "memory" or "redis"
	DefaultTTL    time.Duration
	RedisHost     string
	RedisPort     int
	RedisPassword string
}

const (
	// DefaultChannelThreshold is the transport split point (10MB)
	DefaultChannelThreshold = 10 * 1024 * 1024
	// DefaultMaxFileSize is the bulk upload ceiling (1GB)
	DefaultMaxFileSize = 1024 * 1024 * 1024
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			ClientID:        getEnv("MEDIA_CLIENT_ID", "mediabridge"),
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			LogFormat:       getEnv("LOG_FORMAT", "text"),
			ActivityLogSize: getEnvInt("ACTIVITY_LOG_SIZE", 200),
		},
		Connection: ConnectionConfig{
			ChannelURL:           getEnv("MEDIA_CHANNEL_URL", "ws://localhost:8089/ws"),
			BulkURL:              getEnv("MEDIA_BULK_URL", "http://localhost:8089/api/upload"),
			HandshakeTimeout:     getEnvDuration("MEDIA_HANDSHAKE_TIMEOUT", 10*time.Second),
			WriteTimeout:         getEnvDuration("MEDIA_WRITE_TIMEOUT", 10*time.Second),
			RequestTimeout:       getEnvDuration("MEDIA_REQUEST_TIMEOUT", 5*time.Minute),
			HeartbeatInterval:    getEnvDuration("MEDIA_HEARTBEAT_INTERVAL", 25*time.Second),
			HeartbeatTimeout:     getEnvDuration("MEDIA_HEARTBEAT_TIMEOUT", 75*time.Second),
			ReconnectDelay:       getEnvDuration("MEDIA_RECONNECT_DELAY", 3*time.Second),
			MaxReconnectAttempts: getEnvInt("MEDIA_MAX_RECONNECT_ATTEMPTS", 0),
			AutoReconnect:        getEnvBool("MEDIA_AUTO_RECONNECT", true),
		},
		Upload: UploadConfig{
			ChannelThreshold: getEnvInt64("MEDIA_CHANNEL_THRESHOLD", DefaultChannelThreshold),
			MaxFileSize:      getEnvInt64("MEDIA_MAX_FILE_SIZE", DefaultMaxFileSize),
			AllowedMimeTypes: getEnvSlice("MEDIA_ALLOWED_MIME_TYPES", nil),
		},
		Cache: CacheConfig{
			Backend:       getEnv("CACHE_BACKEND", "memory"),
			DefaultTTL:    getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
			RedisHost:     getEnv("REDIS_HOST", "localhost"),
			RedisPort:     getEnvInt("REDIS_PORT", 6379),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Upload.ChannelThreshold <= 0 {
		return fmt.Errorf("invalid channel threshold: %d", c.Upload.ChannelThreshold)
	}

	if c.Upload.MaxFileSize < c.Upload.ChannelThreshold {
		return fmt.Errorf("max file size %d must be >= channel threshold %d",
			c.Upload.MaxFileSize, c.Upload.ChannelThreshold)
	}

	if c.Connection.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}

	if c.Connection.HeartbeatTimeout != 0 && c.Connection.HeartbeatTimeout <= c.Connection.HeartbeatInterval {
		return fmt.Errorf("heartbeat timeout must exceed the heartbeat interval")
	}

	if c.Connection.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive")
	}

	if c.Connection.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max reconnect attempts must be >= 0")
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}

	return nil
}

// RedisAddr returns the Redis connection address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Cache.RedisHost, c.Cache.RedisPort)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}
