package blobcache

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// Handle is a cache-owned display resource materialized from a fetched
// payload. It generalizes the browser object URL: whoever materializes
// a handle must eventually Release it.
type Handle interface {
	Mime() string
	Size() int64
	Open() (io.ReadCloser, error)
	Release() error
}

// HandleFactory materializes a Handle from a fetched payload
type HandleFactory func(blobID, mime string, data []byte) (Handle, error)

// memoryHandle keeps the payload in memory
type memoryHandle struct {
	mime string
	data []byte
}

// MemoryHandleFactory materializes handles that hold the payload in
// memory. Release drops the reference.
func MemoryHandleFactory(blobID, mime string, data []byte) (Handle, error) {
	return &memoryHandle{mime: mime, data: data}, nil
}

func (h *memoryHandle) Mime() string { return h.mime }
func (h *memoryHandle) Size() int64  { return int64(len(h.data)) }

func (h *memoryHandle) Open() (io.ReadCloser, error) {
	if h.data == nil {
		return nil, fmt.Errorf("handle released")
	}
	return io.NopCloser(bytes.NewReader(h.data)), nil
}

func (h *memoryHandle) Release() error {
	h.data = nil
	return nil
}

// fileHandle spools the payload to a temp file that Release removes
type fileHandle struct {
	mime string
	size int64
	path string
}

// TempFileHandleFactory materializes handles backed by files under
// dir (or the system temp dir when dir is empty). Release deletes the
// file, so a leaked handle leaves a visible artifact.
func TempFileHandleFactory(dir string) HandleFactory {
	return func(blobID, mime string, data []byte) (Handle, error) {
		if dir == "" {
			dir = os.TempDir()
		}
		path := fmt.Sprintf("%s/mediabridge-%s-%s", dir, blobID, uuid.NewString()[:8])
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return nil, fmt.Errorf("failed to spool payload: %w", err)
		}
		return &fileHandle{mime: mime, size: int64(len(data)), path: path}, nil
	}
}

func (h *fileHandle) Mime() string { return h.mime }
func (h *fileHandle) Size() int64  { return h.size }

func (h *fileHandle) Open() (io.ReadCloser, error) {
	if h.path == "" {
		return nil, fmt.Errorf("handle released")
	}
	return os.Open(h.path)
}

func (h *fileHandle) Release() error {
	if h.path == "" {
		return nil
	}
	path := h.path
	h.path = ""
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove spooled payload: %w", err)
	}
	return nil
}
