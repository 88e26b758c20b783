package models

import "fmt"

// ErrorKind is a machine-readable classification of an upload failure.
// Validation kinds are detected locally before any network activity;
// transport kinds are recoverable via reconnect or resubmission; the
// remaining kinds map server responses.
type ErrorKind string

const (
	// Validation failures (pre-flight, no network)
	ErrKindEmptyFile   ErrorKind = "empty-file"
	ErrKindTooSmall    ErrorKind = "too-small"
	ErrKindTooLarge    ErrorKind = "too-large"
	ErrKindInvalidFile ErrorKind = "invalid-file"
	ErrKindHashFailure ErrorKind = "hash-failure"

	// Transport failures
	ErrKindNotConnected ErrorKind = "not-connected"
	ErrKindNetwork      ErrorKind = "network-error"
	ErrKindCancelled    ErrorKind = "cancelled"

	// Bulk endpoint response mapping
	ErrKindInvalidInput    ErrorKind = "invalid-input"
	ErrKindUnauthenticated ErrorKind = "unauthenticated"
	ErrKindForbidden       ErrorKind = "forbidden"
	ErrKindConflict        ErrorKind = "conflict"
	ErrKindServerError     ErrorKind = "server-error"

	// Schema-invalid frames and server-reported application errors
	ErrKindProtocol ErrorKind = "protocol-error"
)

// UploadError carries a kind alongside a human-readable message
type UploadError struct {
	Kind    ErrorKind
	Message string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewUploadError builds an UploadError with a formatted message
func NewUploadError(kind ErrorKind, format string, args ...any) *UploadError {
	return &UploadError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Validation reports whether the error was raised before any network I/O
func (e *UploadError) Validation() bool {
	switch e.Kind {
	case ErrKindEmptyFile, ErrKindTooSmall, ErrKindTooLarge, ErrKindInvalidFile, ErrKindHashFailure:
		return true
	}
	return false
}
