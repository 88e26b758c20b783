// Package blobcache holds the authoritative blob summary list plus a
// lazily populated cache of fetched payloads rendered as displayable
// resource handles.
package blobcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mediabridge/mediabridge/common/cache"
	"github.com/mediabridge/mediabridge/common/events"
	"github.com/mediabridge/mediabridge/common/logger"
	"github.com/mediabridge/mediabridge/common/models"
)

// Cache is the blob summary list and payload cache. Payloads arrive
// through an explicit request/fulfill cycle driven by DataRequested
// and DataCached events.
type Cache struct {
	mu      sync.Mutex
	order   []string
	blobs   map[string]models.MediaBlob
	handles map[string]Handle
	loading map[string]bool
	total   int

	store   cache.Store
	factory HandleFactory
	ttl     time.Duration
	bus     *events.Bus
	log     *logger.Logger
}

// New creates a blob cache over the given payload byte store
func New(store cache.Store, factory HandleFactory, ttl time.Duration, bus *events.Bus, log *logger.Logger) *Cache {
	return &Cache{
		blobs:   make(map[string]models.MediaBlob),
		handles: make(map[string]Handle),
		loading: make(map[string]bool),
		store:   store,
		factory: factory,
		ttl:     ttl,
		bus:     bus,
		log:     log.WithComponent("blobcache"),
	}
}

// SetBlobs replaces the authoritative summary list
func (c *Cache) SetBlobs(blobs []models.MediaBlob, total int) {
	c.mu.Lock()
	c.order = c.order[:0]
	c.blobs = make(map[string]models.MediaBlob, len(blobs))
	for _, b := range blobs {
		c.order = append(c.order, b.ID)
		c.blobs[b.ID] = b
	}
	c.total = total
	count := len(c.order)
	c.mu.Unlock()

	c.bus.Publish(ListUpdated{Count: count, TotalCount: total})
}

// Upsert inserts or refreshes a single summary entry
func (c *Cache) Upsert(blob models.MediaBlob) {
	c.mu.Lock()
	if _, known := c.blobs[blob.ID]; !known {
		c.order = append(c.order, blob.ID)
		c.total++
	}
	c.blobs[blob.ID] = blob
	count := len(c.order)
	total := c.total
	c.mu.Unlock()

	c.bus.Publish(ListUpdated{Count: count, TotalCount: total})
}

// Blobs returns the summary list in order
func (c *Cache) Blobs() []models.MediaBlob {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.MediaBlob, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.blobs[id])
	}
	return out
}

// Blob returns one summary entry
func (c *Cache) Blob(id string) (models.MediaBlob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.blobs[id]
	return b, ok
}

// TotalCount returns the server-reported total
func (c *Cache) TotalCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Request asks for a blob's payload. Already cached or already loading
// ids are no-ops. A byte-store hit materializes immediately; otherwise
// the id is marked loading and DataRequested is emitted for an
// external fetch to satisfy.
func (c *Cache) Request(ctx context.Context, id string) {
	c.mu.Lock()
	if _, cached := c.handles[id]; cached {
		c.mu.Unlock()
		return
	}
	if c.loading[id] {
		c.mu.Unlock()
		return
	}
	c.loading[id] = true
	mime := c.blobs[id].Mime
	c.mu.Unlock()

	data, hit, err := c.store.Get(ctx, id)
	if err != nil {
		c.log.Warn("payload store read failed", "blob_id", id, "error", err)
	}
	if hit {
		if err := c.materialize(id, data, mime); err != nil {
			c.log.Warn("failed to materialize stored payload", "blob_id", id, "error", err)
		} else {
			return
		}
	}

	c.bus.Publish(DataRequested{BlobID: id})
}

// Fulfill delivers a fetched payload, stores it and materializes its
// handle. When the summary list knows the blob's digest, the payload
// is verified against it first.
func (c *Cache) Fulfill(ctx context.Context, id string, data []byte, mime string) error {
	c.mu.Lock()
	summary, known := c.blobs[id]
	c.mu.Unlock()

	if known && summary.SHA256 != "" {
		if got := models.HashBytes(data); got != summary.SHA256 {
			c.mu.Lock()
			delete(c.loading, id)
			c.mu.Unlock()
			return fmt.Errorf("payload for %s failed integrity check: digest %s, expected %s",
				id, got[:8], summary.SHA256[:8])
		}
	}

	if err := c.store.Set(ctx, id, data, c.ttl); err != nil {
		c.log.Warn("payload store write failed", "blob_id", id, "error", err)
	}

	if mime == "" && known {
		mime = summary.Mime
	}

	return c.materialize(id, data, mime)
}

func (c *Cache) materialize(id string, data []byte, mime string) error {
	handle, err := c.factory(id, mime, data)
	if err != nil {
		c.mu.Lock()
		delete(c.loading, id)
		c.mu.Unlock()
		return fmt.Errorf("failed to materialize handle for %s: %w", id, err)
	}

	c.mu.Lock()
	if old, exists := c.handles[id]; exists {
		_ = old.Release()
	}
	c.handles[id] = handle
	delete(c.loading, id)
	c.mu.Unlock()

	c.log.Debug("payload cached", "blob_id", id, "mime", mime, "bytes", len(data))
	c.bus.Publish(DataCached{BlobID: id, Mime: mime, Size: int64(len(data))})
	return nil
}

// Handle returns the materialized handle for id, if any
func (c *Cache) Handle(id string) (Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[id]
	return h, ok
}

// Abandon forgets an in-flight fetch so the id can be requested again.
// Callers invoke it when the external fetch that a DataRequested event
// asked for cannot complete.
func (c *Cache) Abandon(id string) {
	c.mu.Lock()
	delete(c.loading, id)
	c.mu.Unlock()
}

// Loading reports whether a fetch for id is in flight
func (c *Cache) Loading(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading[id]
}

// SizeString returns the human-readable size of a blob
func (c *Cache) SizeString(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.blobs[id]
	if !ok {
		return "unknown"
	}
	return sizeLabel(b.Size)
}

// Preview derives the render-ready description for one blob
func (c *Cache) Preview(id string) (Preview, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.blobs[id]
	if !ok {
		return Preview{}, false
	}

	p := Preview{
		BlobID:    id,
		Kind:      kindForMime(b.Mime),
		State:     PreviewNotLoaded,
		SizeLabel: sizeLabel(b.Size),
	}

	if h, cached := c.handles[id]; cached {
		p.State = PreviewLoaded
		p.Handle = h
	} else if c.loading[id] {
		p.State = PreviewLoading
	}

	return p, true
}

// Clear releases every materialized handle and forgets in-flight
// fetches. The summary list survives; payloads can be re-requested.
func (c *Cache) Clear() {
	c.mu.Lock()
	handles := c.handles
	c.handles = make(map[string]Handle)
	c.loading = make(map[string]bool)
	c.mu.Unlock()

	for id, h := range handles {
		if err := h.Release(); err != nil {
			c.log.Warn("failed to release handle", "blob_id", id, "error", err)
		}
	}
	c.log.Info("payload cache cleared", "released", len(handles))
}

// Close tears the cache down: releases handles and closes the store
func (c *Cache) Close() error {
	c.Clear()
	return c.store.Close()
}
