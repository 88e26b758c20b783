package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mediabridge/mediabridge/common/logger"
)

const redisKeyPrefix = "mediabridge:payload:"

// RedisStore backs the payload cache with Redis so fetched payloads
// survive across process restarts
type RedisStore struct {
	redis *redis.Client
	log   *logger.Logger
}

// NewRedisStore creates a Redis-backed store and verifies connectivity
func NewRedisStore(ctx context.Context, addr, password string, log *logger.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	log.Info("connected to redis payload store", "addr", addr)
	return &RedisStore{
		redis: client,
		log:   log,
	}, nil
}

// Get retrieves a payload by key
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.redis.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		s.log.Error("redis GET failed", "key", key, "error", err)
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores a payload with TTL (0 = no expiration)
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.redis.Set(ctx, redisKeyPrefix+key, value, ttl).Err(); err != nil {
		s.log.Error("redis SET failed", "key", key, "error", err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	s.log.Debug("redis SET", "key", key, "bytes", len(value), "ttl", ttl)
	return nil
}

// Delete removes a payload
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		s.log.Error("redis DEL failed", "key", key, "error", err)
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying Redis connection
func (s *RedisStore) Close() error {
	return s.redis.Close()
}
