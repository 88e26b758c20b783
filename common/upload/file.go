package upload

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// File is a submitted unit of content. It generalizes the browser file
// object: pipelines read size and name up front, then open the content
// when they need the bytes.
type File interface {
	Name() string
	Size() int64
	ModTime() time.Time
	// Mime returns the caller-supplied content type, or "" when the
	// pipeline should sniff it from the content.
	Mime() string
	Open() (io.ReadCloser, error)
}

// DiskFile is a File backed by the local filesystem
type DiskFile struct {
	path    string
	name    string
	size    int64
	modTime time.Time
	mime    string
}

// NewDiskFile stats path and wraps it as a File
func NewDiskFile(path string) (*DiskFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return &DiskFile{
		path:    path,
		name:    filepath.Base(path),
		size:    info.Size(),
		modTime: info.ModTime(),
	}, nil
}

func (f *DiskFile) Name() string       { return f.name }
func (f *DiskFile) Size() int64        { return f.size }
func (f *DiskFile) ModTime() time.Time { return f.modTime }
func (f *DiskFile) Mime() string       { return f.mime }

// Open opens the underlying file for reading
func (f *DiskFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// MemoryFile is a File held entirely in memory
type MemoryFile struct {
	name    string
	mime    string
	data    []byte
	modTime time.Time
}

// NewMemoryFile wraps a byte slice as a File
func NewMemoryFile(name, mime string, data []byte, modTime time.Time) *MemoryFile {
	return &MemoryFile{
		name:    name,
		mime:    mime,
		data:    data,
		modTime: modTime,
	}
}

func (f *MemoryFile) Name() string       { return f.name }
func (f *MemoryFile) Size() int64        { return int64(len(f.data)) }
func (f *MemoryFile) ModTime() time.Time { return f.modTime }
func (f *MemoryFile) Mime() string       { return f.mime }

func (f *MemoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// resolveMime returns the caller-supplied content type, falling back
// to sniffing the leading bytes
func resolveMime(f File, head []byte) string {
	if m := f.Mime(); m != "" {
		return m
	}
	return mimetype.Detect(head).String()
}

// sniffMime detects the content type from the first bytes of a stream
func sniffMime(f File) (string, error) {
	if m := f.Mime(); m != "" {
		return m, nil
	}

	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	m, err := mimetype.DetectReader(rc)
	if err != nil {
		return "", err
	}
	return m.String(), nil
}
