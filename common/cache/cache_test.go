package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediabridge/mediabridge/common/logger"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(logger.Discard())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMemoryStoreSetGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "blob-1", []byte("payload"), 0))

	value, found, err := s.Get(ctx, "blob-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("payload"), value)

	_, found, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short", []byte("x"), 20*time.Millisecond))
	require.NoError(t, s.Set(ctx, "forever", []byte("y"), 0))

	_, found, err := s.Get(ctx, "short")
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(40 * time.Millisecond)

	_, found, err = s.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, found, "expired entries count as misses")

	_, found, err = s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, found, "zero ttl never expires")
}

func TestMemoryStoreOverwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v1"), 0))
	require.NoError(t, s.Set(ctx, "k", []byte("v2"), 0))

	value, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v2"), value)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, s.Delete(ctx, "k"))

	_, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, s.Delete(ctx, "never-existed"))
}

func TestMemoryStoreClose(t *testing.T) {
	s := NewMemoryStore(logger.Discard())
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, s.Close())

	assert.Equal(t, 0, s.Len())

	// closing twice is safe
	assert.NoError(t, s.Close())
}
