// Package cache provides the byte stores backing the blob payload
// cache: an in-memory store with TTL for single-process use and a
// Redis store so payloads survive across CLI invocations.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/mediabridge/mediabridge/common/logger"
)

// Store is a key-value byte store with per-entry TTL
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryStore is the in-memory Store implementation
type MemoryStore struct {
	data map[string]*entry
	mu   sync.RWMutex
	log  *logger.Logger
	stop chan struct{}
	once sync.Once
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store and starts its cleanup loop
func NewMemoryStore(log *logger.Logger) *MemoryStore {
	s := &MemoryStore{
		data: make(map[string]*entry),
		log:  log,
		stop: make(chan struct{}),
	}

	go s.cleanup()

	return s
}

// Get retrieves a value; expired entries count as misses
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[key]
	if !exists {
		return nil, false, nil
	}

	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		return nil, false, nil
	}

	return e.value, true, nil
}

// Set stores a value. A zero ttl means no expiration.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.data[key] = e

	return nil
}

// Delete removes a value
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Close stops the cleanup loop and drops all entries
func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		close(s.stop)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]*entry)
	return nil
}

// cleanup removes expired entries periodically
func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for key, e := range s.data {
				if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Len returns the number of live entries
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
