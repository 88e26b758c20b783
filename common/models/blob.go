package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// MediaBlob is a unit of binary content plus metadata, identified by id
// and integrity-verified by its SHA-256 digest. Data is often absent once
// the blob is persisted server-side; metadata stays authoritative.
type MediaBlob struct {
	ID             string         `json:"id"`
	Data           []byte         `json:"data,omitempty"`
	SHA256         string         `json:"sha256"`
	Size           int64          `json:"size"`
	Mime           string         `json:"mime,omitempty"`
	SourceClientID string         `json:"source_client_id,omitempty"`
	LocalPath      string         `json:"local_path,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// HashBytes returns the lowercase hex SHA-256 digest of data.
// Both transport pipelines use this, so identical bytes always produce
// the same digest regardless of which path carried them.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader digests an entire stream and returns the lowercase hex
// SHA-256 along with the number of bytes consumed.
func HashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ValidDigest reports whether s is a well-formed lowercase hex SHA-256
func ValidDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Validate checks the blob's internal consistency
func (b *MediaBlob) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("blob id is required")
	}

	if !ValidDigest(b.SHA256) {
		return fmt.Errorf("sha256 must be 64 lowercase hex characters")
	}

	if len(b.Data) > 0 {
		if got := HashBytes(b.Data); got != b.SHA256 {
			return fmt.Errorf("sha256 %s does not match data digest %s", b.SHA256, got)
		}
		if b.Size != int64(len(b.Data)) {
			return fmt.Errorf("size %d does not match data length %d", b.Size, len(b.Data))
		}
	}

	return nil
}
