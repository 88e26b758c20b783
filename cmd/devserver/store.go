package main

import (
	"sync"

	"github.com/mediabridge/mediabridge/common/models"
)

// blobStore is the in-memory blob repository behind both endpoints.
// Everything lives in process memory so the server is hermetic for
// development and tests.
type blobStore struct {
	mu    sync.RWMutex
	order []string
	blobs map[string]models.MediaBlob
	bySHA map[string]string
}

func newBlobStore() *blobStore {
	return &blobStore{
		blobs: make(map[string]models.MediaBlob),
		bySHA: make(map[string]string),
	}
}

// Add stores a blob. When a blob with the same digest exists, the
// existing id is returned and ok is false.
func (s *blobStore) Add(blob models.MediaBlob) (existingID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, dup := s.bySHA[blob.SHA256]; dup {
		return id, false
	}

	s.order = append(s.order, blob.ID)
	s.blobs[blob.ID] = blob
	s.bySHA[blob.SHA256] = blob.ID
	return blob.ID, true
}

// Get returns a blob. Without withData the payload is stripped, the
// way list and metadata responses omit it.
func (s *blobStore) Get(id string, withData bool) (models.MediaBlob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[id]
	if !ok {
		return models.MediaBlob{}, false
	}
	if !withData {
		blob.Data = nil
	}
	return blob, true
}

// List returns a page of blobs without payloads, plus the total count
func (s *blobStore) List(limit, offset int) ([]models.MediaBlob, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.order)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	out := make([]models.MediaBlob, 0, end-offset)
	for _, id := range s.order[offset:end] {
		blob := s.blobs[id]
		blob.Data = nil
		out = append(out, blob)
	}
	return out, total
}

// Delete removes a blob by id
func (s *blobStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.blobs[id]
	if !ok {
		return false
	}
	delete(s.blobs, id)
	delete(s.bySHA, blob.SHA256)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}
