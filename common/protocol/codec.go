package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mediabridge/mediabridge/common/models"
)

// ValidationError describes a frame that failed schema validation.
// It distinguishes protocol problems from transport problems.
type ValidationError struct {
	Frame  string // frame type tag, empty when the envelope itself is bad
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Frame == "" {
		return fmt.Sprintf("invalid frame: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s frame: %s", e.Frame, e.Reason)
}

func invalid(frame, format string, args ...any) *ValidationError {
	return &ValidationError{Frame: frame, Reason: fmt.Sprintf(format, args...)}
}

// envelope is the adjacently tagged wire representation. Unit frames
// omit the data key entirely.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeClient validates and serializes a client frame
func EncodeClient(f ClientFrame) ([]byte, error) {
	if err := ValidateClient(f); err != nil {
		return nil, err
	}
	return encode(f.FrameType(), f)
}

// EncodeServer validates and serializes a server frame
func EncodeServer(f ServerFrame) ([]byte, error) {
	if err := ValidateServer(f); err != nil {
		return nil, err
	}
	return encode(f.FrameType(), f)
}

func encode(frameType string, payload any) ([]byte, error) {
	env := envelope{Type: frameType}

	switch payload.(type) {
	case *Heartbeat, *HeartbeatAck:
		// unit frames carry no data
	default:
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s frame: %w", frameType, err)
		}
		env.Data = raw
	}

	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", frameType, err)
	}
	return out, nil
}

// ParseClient parses and validates a client frame. The returned error,
// when non-nil, is always a *ValidationError.
func ParseClient(data []byte) (ClientFrame, error) {
	env, verr := parseEnvelope(data)
	if verr != nil {
		return nil, verr
	}

	var frame ClientFrame
	switch env.Type {
	case TypeHeartbeat:
		frame = &Heartbeat{}
	case TypeListBlobs:
		frame = &ListBlobs{}
	case TypeUploadBlob:
		frame = &UploadBlob{}
	case TypeGetBlob:
		frame = &GetBlob{}
	case TypeGetBlobData:
		frame = &GetBlobData{}
	default:
		return nil, invalid("", "unknown client frame type %q", env.Type)
	}

	if err := decodePayload(env, frame); err != nil {
		return nil, err
	}
	if err := ValidateClient(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// ParseServer parses and validates a server frame. The returned error,
// when non-nil, is always a *ValidationError.
func ParseServer(data []byte) (ServerFrame, error) {
	env, verr := parseEnvelope(data)
	if verr != nil {
		return nil, verr
	}

	var frame ServerFrame
	switch env.Type {
	case TypeWelcome:
		frame = &Welcome{}
	case TypeHeartbeatAck:
		frame = &HeartbeatAck{}
	case TypeBlobList:
		frame = &BlobList{}
	case TypeBlobMeta:
		frame = &BlobMeta{}
	case TypeBlobData:
		frame = &BlobData{}
	case TypeError:
		frame = &Error{}
	case TypePresenceUpdate:
		frame = &PresenceUpdate{}
	default:
		return nil, invalid("", "unknown server frame type %q", env.Type)
	}

	if err := decodePayload(env, frame); err != nil {
		return nil, err
	}
	if err := ValidateServer(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func parseEnvelope(data []byte) (*envelope, *ValidationError) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, invalid("", "malformed JSON: %v", err)
	}
	if env.Type == "" {
		return nil, invalid("", "missing type tag")
	}
	return &env, nil
}

func decodePayload(env *envelope, frame any) error {
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, frame); err != nil {
		return invalid(env.Type, "malformed data payload: %v", err)
	}
	return nil
}

// ValidateClient checks a client frame against the schema
func ValidateClient(f ClientFrame) error {
	switch msg := f.(type) {
	case *Heartbeat:
		return nil
	case *ListBlobs:
		if msg.Limit != nil && *msg.Limit < 0 {
			return invalid(TypeListBlobs, "limit must be non-negative")
		}
		if msg.Offset != nil && *msg.Offset < 0 {
			return invalid(TypeListBlobs, "offset must be non-negative")
		}
		return nil
	case *UploadBlob:
		if err := msg.Blob.Validate(); err != nil {
			return invalid(TypeUploadBlob, "%v", err)
		}
		if len(msg.Blob.Data) == 0 {
			return invalid(TypeUploadBlob, "channel upload requires inline data")
		}
		return nil
	case *GetBlob:
		return validateID(TypeGetBlob, msg.ID)
	case *GetBlobData:
		return validateID(TypeGetBlobData, msg.ID)
	case nil:
		return invalid("", "nil frame")
	default:
		return invalid("", "unsupported client frame %T", f)
	}
}

// ValidateServer checks a server frame against the schema
func ValidateServer(f ServerFrame) error {
	switch msg := f.(type) {
	case *Welcome:
		if msg.ConnectionID == "" {
			return invalid(TypeWelcome, "connection_id is required")
		}
		return nil
	case *HeartbeatAck:
		return nil
	case *BlobList:
		if msg.TotalCount < 0 {
			return invalid(TypeBlobList, "total_count must be non-negative")
		}
		for i := range msg.Blobs {
			if msg.Blobs[i].ID == "" {
				return invalid(TypeBlobList, "blob at index %d has no id", i)
			}
			if !models.ValidDigest(msg.Blobs[i].SHA256) {
				return invalid(TypeBlobList, "blob %s has a malformed sha256", msg.Blobs[i].ID)
			}
		}
		return nil
	case *BlobMeta:
		if msg.Blob.ID == "" {
			return invalid(TypeBlobMeta, "blob id is required")
		}
		if !models.ValidDigest(msg.Blob.SHA256) {
			return invalid(TypeBlobMeta, "malformed sha256")
		}
		return nil
	case *BlobData:
		if err := validateID(TypeBlobData, msg.ID); err != nil {
			return err
		}
		if msg.Size != int64(len(msg.Data)) {
			return invalid(TypeBlobData, "size %d does not match payload length %d", msg.Size, len(msg.Data))
		}
		return nil
	case *Error:
		if msg.Message == "" {
			return invalid(TypeError, "message is required")
		}
		return nil
	case *PresenceUpdate:
		if msg.UserCount < 0 {
			return invalid(TypePresenceUpdate, "user_count must be non-negative")
		}
		return nil
	case nil:
		return invalid("", "nil frame")
	default:
		return invalid("", "unsupported server frame %T", f)
	}
}

func validateID(frame, id string) error {
	if id == "" {
		return invalid(frame, "id is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return invalid(frame, "id must be a UUID: %v", err)
	}
	return nil
}
