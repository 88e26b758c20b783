// Package connection owns the single logical channel connection:
// lifecycle, reconnection and keepalive. All channel-path availability
// is driven by its state transitions.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mediabridge/mediabridge/common/config"
	"github.com/mediabridge/mediabridge/common/events"
	"github.com/mediabridge/mediabridge/common/logger"
	"github.com/mediabridge/mediabridge/common/protocol"
)

// State is the connection lifecycle state
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// errDialSuperseded marks a dial whose result arrived after the
// connection it was opening had already been replaced or torn down.
var errDialSuperseded = errors.New("connection superseded during dial")

// Manager owns one logical channel connection
type Manager struct {
	cfg config.ConnectionConfig
	bus *events.Bus
	log *logger.Logger

	mu             sync.Mutex
	conn           *websocket.Conn
	state          State
	url            string
	autoReconnect  bool
	attempts       int
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}
	lastAck        time.Time

	// gen increments whenever the current connection is replaced or
	// torn down, so pump goroutines from a previous connection cannot
	// act on the new one.
	gen int

	// writeMu serializes writes; gorilla allows one concurrent writer
	writeMu sync.Mutex
}

// NewManager creates a connection manager. It does not connect.
func NewManager(cfg config.ConnectionConfig, bus *events.Bus, log *logger.Logger) *Manager {
	return &Manager{
		cfg:   cfg,
		bus:   bus,
		log:   log.WithComponent("connection"),
		state: StateDisconnected,
	}
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ReconnectAttempts returns the current automatic reconnect counter
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Connect opens the channel to url. Connecting while already connected
// is a no-op success. A failed caller-initiated attempt is surfaced to
// the caller and, when auto-reconnect is enabled, also schedules the
// retry loop; later automatic attempts never surface errors.
func (m *Manager) Connect(ctx context.Context, url string) error {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	if m.state == StateConnecting {
		m.mu.Unlock()
		return fmt.Errorf("connect already in progress")
	}
	m.url = url
	m.autoReconnect = m.cfg.AutoReconnect
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	ev := m.setStateLocked(StateConnecting)
	m.mu.Unlock()
	m.publish(ev)

	if err := m.dial(ctx); err != nil {
		if errors.Is(err, errDialSuperseded) {
			// whoever superseded the dial owns the state now
			return err
		}
		m.mu.Lock()
		ev := m.setStateLocked(StateError)
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		m.publish(ev)
		return err
	}
	return nil
}

// Disconnect disables auto-reconnect, closes the channel with a normal
// closure code and cancels the heartbeat and any pending reconnect
// timer together.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.autoReconnect = false
	m.attempts = 0
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.stopHeartbeatLocked()
	m.gen++
	conn := m.conn
	m.conn = nil
	ev := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(m.cfg.WriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = conn.Close()
	}
	m.publish(ev)
	m.log.Info("disconnected")
}

// Send validates and transmits a client frame. It returns false rather
// than an error: validation failures and transport failures are
// reported as distinct event classes on the bus.
func (m *Manager) Send(f protocol.ClientFrame) bool {
	data, err := protocol.EncodeClient(f)
	if err != nil {
		m.log.Warn("outbound frame failed validation", "frame", f.FrameType(), "error", err)
		m.bus.Publish(ValidationFailed{Direction: "outbound", Err: err})
		return false
	}

	if err := m.write(data); err != nil {
		m.log.Warn("send failed", "frame", f.FrameType(), "error", err)
		m.bus.Publish(TransportError{Err: err})
		return false
	}

	m.bus.Publish(FrameSent{Frame: f})
	return true
}

func (m *Manager) write(data []byte) error {
	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		m.mu.Unlock()
		return fmt.Errorf("channel not connected")
	}
	conn := m.conn
	m.mu.Unlock()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// dial opens the socket and starts the per-connection pump goroutines.
// On success the reconnect counter resets to zero. The generation is
// snapshotted before dialing; if it moved while the handshake was in
// flight (Disconnect, or a competing dial that won), the fresh socket
// is discarded instead of installed.
func (m *Manager) dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: m.cfg.HandshakeTimeout,
	}

	m.mu.Lock()
	url := m.url
	startGen := m.gen
	m.mu.Unlock()

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", url, err)
	}

	m.mu.Lock()
	if m.gen != startGen {
		m.mu.Unlock()
		_ = conn.Close()
		return errDialSuperseded
	}
	m.conn = conn
	m.attempts = 0
	m.lastAck = time.Now()
	m.gen++
	gen := m.gen
	m.stopHeartbeatLocked()
	stop := make(chan struct{})
	m.heartbeatStop = stop
	ev := m.setStateLocked(StateConnected)
	m.mu.Unlock()

	go m.readPump(conn, gen)
	go m.heartbeat(conn, stop)

	m.publish(ev)
	m.log.Info("channel connected", "url", url)
	return nil
}

// readPump parses and validates every inbound frame before dispatch.
// Malformed frames emit a validation-error event and are dropped
// without affecting connection state.
func (m *Manager) readPump(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClosed(gen, err)
			return
		}

		frame, perr := protocol.ParseServer(data)
		if perr != nil {
			m.log.Warn("dropping malformed inbound frame", "error", perr)
			m.bus.Publish(ValidationFailed{Direction: "inbound", Err: perr})
			continue
		}

		if _, ok := frame.(*protocol.HeartbeatAck); ok {
			m.mu.Lock()
			m.lastAck = time.Now()
			m.mu.Unlock()
		}

		m.bus.Publish(FrameReceived{Frame: frame})
	}
}

// heartbeat emits an application-level Heartbeat frame on a fixed
// interval while connected. When a heartbeat timeout is configured it
// also force-closes the socket after prolonged silence, which feeds
// the regular reconnect path.
func (m *Manager) heartbeat(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if m.cfg.HeartbeatTimeout > 0 {
				m.mu.Lock()
				silent := time.Since(m.lastAck) > m.cfg.HeartbeatTimeout
				m.mu.Unlock()
				if silent {
					m.log.Warn("no heartbeat ack within timeout, closing channel",
						"timeout", m.cfg.HeartbeatTimeout)
					_ = conn.Close()
					return
				}
			}

			data, err := protocol.EncodeClient(&protocol.Heartbeat{})
			if err != nil {
				return
			}
			if err := m.write(data); err != nil {
				m.log.Debug("heartbeat write failed", "error", err)
				return
			}
			m.log.Debug("heartbeat sent")
		}
	}
}

// handleClosed runs when the read pump exits. Stale pumps from an
// already-replaced connection are ignored via the generation counter.
func (m *Manager) handleClosed(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.stopHeartbeatLocked()
	m.conn = nil
	ev := m.setStateLocked(StateDisconnected)

	normal := websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
	reconnecting := !normal && m.autoReconnect
	if reconnecting {
		m.scheduleReconnectLocked()
	}
	m.mu.Unlock()

	m.publish(ev)
	if !normal {
		m.bus.Publish(TransportError{Err: err})
	}
	m.log.Info("channel closed", "error", err, "reconnecting", reconnecting)
}

// scheduleReconnectLocked arms the reconnect timer if attempts remain.
// Caller must hold m.mu.
func (m *Manager) scheduleReconnectLocked() {
	if !m.autoReconnect {
		return
	}
	if m.cfg.MaxReconnectAttempts > 0 && m.attempts >= m.cfg.MaxReconnectAttempts {
		m.log.Warn("reconnect attempts exhausted", "attempts", m.attempts)
		return
	}
	m.attempts++
	attempt := m.attempts
	m.reconnectTimer = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.reconnect(attempt)
	})
	m.log.Info("reconnect scheduled", "attempt", attempt, "delay", m.cfg.ReconnectDelay)
}

// reconnect is an automatic attempt; its failure is never surfaced to
// callers, only logged and rescheduled.
func (m *Manager) reconnect(attempt int) {
	m.mu.Lock()
	if !m.autoReconnect || m.state == StateConnected {
		m.mu.Unlock()
		return
	}
	ev := m.setStateLocked(StateConnecting)
	m.mu.Unlock()
	m.publish(ev)

	if err := m.dial(context.Background()); err != nil {
		if errors.Is(err, errDialSuperseded) {
			return
		}
		m.log.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
		m.mu.Lock()
		ev := m.setStateLocked(StateError)
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		m.publish(ev)
	}
}

// setStateLocked transitions to s and returns the event to publish
// after the lock is released, or nil when s equals the current state.
// Caller must hold m.mu.
func (m *Manager) setStateLocked(s State) *StateChanged {
	if m.state == s {
		return nil
	}
	old := m.state
	m.state = s
	return &StateChanged{Old: old, New: s}
}

// stopHeartbeatLocked cancels the per-connection heartbeat goroutine.
// Caller must hold m.mu.
func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}

func (m *Manager) publish(ev *StateChanged) {
	if ev != nil {
		m.bus.Publish(*ev)
	}
}
