package connection

import "github.com/mediabridge/mediabridge/common/protocol"

// StateChanged fires on every state transition. Consecutive duplicate
// states are collapsed before publication.
type StateChanged struct {
	Old State
	New State
}

func (StateChanged) EventName() string { return "connection.state_changed" }

// FrameReceived fires for every inbound frame that passed validation
type FrameReceived struct {
	Frame protocol.ServerFrame
}

func (FrameReceived) EventName() string { return "connection.frame_received" }

// FrameSent fires after a frame was written to the channel
type FrameSent struct {
	Frame protocol.ClientFrame
}

func (FrameSent) EventName() string { return "connection.frame_sent" }

// ValidationFailed fires when a frame fails schema validation, in
// either direction. The connection state is unaffected.
type ValidationFailed struct {
	Direction string // "inbound" or "outbound"
	Err       error
}

func (ValidationFailed) EventName() string { return "connection.validation_failed" }

// TransportError fires on socket-level failures and rejected sends
type TransportError struct {
	Err error
}

func (TransportError) EventName() string { return "connection.transport_error" }
