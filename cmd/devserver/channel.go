package main

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/mediabridge/mediabridge/common/protocol"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Dev server accepts any origin
		return true
	},
}

// hub tracks active channel sessions for presence reporting
type hub struct {
	mu       sync.RWMutex
	sessions map[string]struct{}
}

func newHub() *hub {
	return &hub{
		sessions: make(map[string]struct{}),
	}
}

func (h *hub) add(id string) {
	h.mu.Lock()
	h.sessions[id] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// handleChannel upgrades the request and runs the frame loop
func (s *Server) handleChannel(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("channel upgrade failed", "error", err)
		return nil
	}

	connectionID := fmt.Sprintf("conn_%s", uuid.NewString())
	s.hub.add(connectionID)
	s.log.Info("channel session opened", "connection_id", connectionID, "remote", c.Request().RemoteAddr)

	go s.serveSession(conn, connectionID)
	return nil
}

func (s *Server) serveSession(conn *websocket.Conn, connectionID string) {
	defer func() {
		s.hub.remove(connectionID)
		conn.Close()
		s.log.Info("channel session closed", "connection_id", connectionID)
	}()

	s.sendFrame(conn, &protocol.Welcome{
		Message:      "Connected to media channel",
		ConnectionID: connectionID,
	})
	s.sendFrame(conn, &protocol.PresenceUpdate{
		Connected: true,
		UserCount: s.hub.count(),
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		frame, perr := protocol.ParseClient(data)
		if perr != nil {
			s.log.Warn("unparseable client frame", "connection_id", connectionID, "error", perr)
			s.sendFrame(conn, &protocol.Error{Message: "Invalid message format"})
			continue
		}

		if reply := s.handleFrame(frame); reply != nil {
			if !s.sendFrame(conn, reply) {
				return
			}
		}
	}
}

// handleFrame answers one client frame; a nil reply means no response
func (s *Server) handleFrame(frame protocol.ClientFrame) protocol.ServerFrame {
	switch f := frame.(type) {
	case *protocol.Heartbeat:
		return &protocol.HeartbeatAck{}

	case *protocol.ListBlobs:
		limit, offset := 0, 0
		if f.Limit != nil {
			limit = *f.Limit
		}
		if f.Offset != nil {
			offset = *f.Offset
		}
		items, total := s.store.List(limit, offset)
		return &protocol.BlobList{Blobs: items, TotalCount: total}

	case *protocol.UploadBlob:
		blob := f.Blob
		if int64(len(blob.Data)) >= s.cfg.ChannelThreshold {
			return &protocol.Error{
				Message: "blob too large for the channel path",
				Code:    "too_large",
			}
		}
		if existingID, ok := s.store.Add(blob); !ok {
			return &protocol.Error{
				Message: fmt.Sprintf("file already exists with id %s", existingID),
				Code:    "duplicate",
			}
		}
		s.log.Info("channel upload stored", "blob_id", blob.ID, "size", blob.Size)
		meta := blob
		meta.Data = nil
		return &protocol.BlobMeta{Blob: meta}

	case *protocol.GetBlob:
		blob, ok := s.store.Get(f.ID, false)
		if !ok {
			return &protocol.Error{Message: "Media blob not found", Code: "not_found"}
		}
		return &protocol.BlobMeta{Blob: blob}

	case *protocol.GetBlobData:
		blob, ok := s.store.Get(f.ID, true)
		if !ok {
			return &protocol.Error{Message: "Media blob not found", Code: "not_found"}
		}
		if len(blob.Data) == 0 {
			return &protocol.Error{Message: "Media blob has no inline data", Code: "no_data"}
		}
		return &protocol.BlobData{
			ID:   blob.ID,
			Data: blob.Data,
			Mime: blob.Mime,
			Size: int64(len(blob.Data)),
		}
	}
	return nil
}

func (s *Server) sendFrame(conn *websocket.Conn, frame protocol.ServerFrame) bool {
	data, err := protocol.EncodeServer(frame)
	if err != nil {
		s.log.Error("failed to encode server frame", "frame", frame.FrameType(), "error", err)
		return true
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return false
	}
	return true
}
