package models

import "time"

// Transport identifies which pipeline carries an upload
type Transport string

const (
	// TransportChannel is the persistent message channel (small files)
	TransportChannel Transport = "channel"
	// TransportBulk is the one-shot multipart upload (large files)
	TransportBulk Transport = "bulk"
)

// TaskStatus is the lifecycle state of an upload task
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusHashing   TaskStatus = "hashing"
	StatusUploading TaskStatus = "uploading"
	StatusCompleted TaskStatus = "completed"
	StatusError     TaskStatus = "error"
	StatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// UploadTask is a tracked, cancellable, retryable unit of upload work
// bound to one file and one transport. The transport is chosen once at
// submission time and never revisited.
type UploadTask struct {
	ID        string     `json:"id"`
	FileName  string     `json:"file_name"`
	Size      int64      `json:"size"`
	Transport Transport  `json:"transport"`
	Status    TaskStatus `json:"status"`
	Progress  int        `json:"progress"`
	BlobID    string     `json:"blob_id,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Clone returns a copy safe to hand to event listeners
func (t *UploadTask) Clone() *UploadTask {
	dup := *t
	return &dup
}
