// Package protocol defines the channel wire format: adjacently tagged
// JSON frames of the form {"type": "...", "data": {...}} exchanged over
// the persistent media channel. Parsing is total: any input yields
// either a typed frame or a ValidationError, never a panic.
package protocol

import (
	"github.com/mediabridge/mediabridge/common/models"
)

// Frame type tags on the wire
const (
	TypeHeartbeat   = "Heartbeat"
	TypeListBlobs   = "ListBlobs"
	TypeUploadBlob  = "UploadBlob"
	TypeGetBlob     = "GetBlob"
	TypeGetBlobData = "GetBlobData"

	TypeWelcome        = "Welcome"
	TypeHeartbeatAck   = "HeartbeatAck"
	TypeBlobList       = "BlobList"
	TypeBlobMeta       = "BlobMeta"
	TypeBlobData       = "BlobData"
	TypeError          = "Error"
	TypePresenceUpdate = "PresenceUpdate"
)

// ClientFrame is a message sent from client to server
type ClientFrame interface {
	FrameType() string
}

// ServerFrame is a message sent from server to client
type ServerFrame interface {
	FrameType() string
}

// Heartbeat is the client keepalive message
type Heartbeat struct{}

// ListBlobs requests the blob summary list
type ListBlobs struct {
	Limit  *int `json:"limit,omitempty"`
	Offset *int `json:"offset,omitempty"`
}

// UploadBlob carries a complete small blob over the channel
type UploadBlob struct {
	Blob models.MediaBlob `json:"blob"`
}

// GetBlob requests a single blob's metadata by id
type GetBlob struct {
	ID string `json:"id"`
}

// GetBlobData requests a blob's raw payload by id
type GetBlobData struct {
	ID string `json:"id"`
}

func (*Heartbeat) FrameType() string   { return TypeHeartbeat }
func (*ListBlobs) FrameType() string   { return TypeListBlobs }
func (*UploadBlob) FrameType() string  { return TypeUploadBlob }
func (*GetBlob) FrameType() string     { return TypeGetBlob }
func (*GetBlobData) FrameType() string { return TypeGetBlobData }

// Welcome is the server greeting after the channel opens
type Welcome struct {
	Message      string `json:"message"`
	UserID       string `json:"user_id,omitempty"`
	ConnectionID string `json:"connection_id"`
}

// HeartbeatAck answers a client Heartbeat
type HeartbeatAck struct{}

// BlobList is the summary list response
type BlobList struct {
	Blobs      []models.MediaBlob `json:"blobs"`
	TotalCount int                `json:"total_count"`
}

// BlobMeta carries a single blob's metadata
type BlobMeta struct {
	Blob models.MediaBlob `json:"blob"`
}

// BlobData carries a blob's raw payload
type BlobData struct {
	ID   string `json:"id"`
	Data []byte `json:"data"`
	Mime string `json:"mime,omitempty"`
	Size int64  `json:"size"`
}

// Error is a server-reported application error
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// PresenceUpdate reports connection status and connected user count
type PresenceUpdate struct {
	Connected bool `json:"connected"`
	UserCount int  `json:"user_count"`
}

func (*Welcome) FrameType() string        { return TypeWelcome }
func (*HeartbeatAck) FrameType() string   { return TypeHeartbeatAck }
func (*BlobList) FrameType() string       { return TypeBlobList }
func (*BlobMeta) FrameType() string       { return TypeBlobMeta }
func (*BlobData) FrameType() string       { return TypeBlobData }
func (*Error) FrameType() string          { return TypeError }
func (*PresenceUpdate) FrameType() string { return TypePresenceUpdate }
