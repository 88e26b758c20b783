package blobcache

import (
	"strings"

	"github.com/dustin/go-humanize"
)

// PreviewKind is the type-specific rendering family for a blob
type PreviewKind string

const (
	PreviewImage   PreviewKind = "image"
	PreviewVideo   PreviewKind = "video"
	PreviewAudio   PreviewKind = "audio"
	PreviewPDF     PreviewKind = "pdf"
	PreviewGeneric PreviewKind = "generic"
)

// PreviewState tracks whether the payload behind a preview is present
type PreviewState string

const (
	PreviewNotLoaded PreviewState = "not-loaded"
	PreviewLoading   PreviewState = "loading"
	PreviewLoaded    PreviewState = "loaded"
)

// Preview is the derived, render-ready description of one blob
type Preview struct {
	BlobID    string
	Kind      PreviewKind
	State     PreviewState
	SizeLabel string
	Handle    Handle // nil unless State is PreviewLoaded
}

// kindForMime buckets a MIME type into a preview family
func kindForMime(mime string) PreviewKind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return PreviewImage
	case strings.HasPrefix(mime, "video/"):
		return PreviewVideo
	case strings.HasPrefix(mime, "audio/"):
		return PreviewAudio
	case mime == "application/pdf":
		return PreviewPDF
	default:
		return PreviewGeneric
	}
}

// sizeLabel renders a byte count for display, e.g. "2.0 kB"
func sizeLabel(size int64) string {
	if size < 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(size))
}
