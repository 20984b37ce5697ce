package hub

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"gridsheet/internal/engine"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // collaborative editing is meant to be embedded cross-origin
	},
}

var nextUserSeq int64

func nextUserID(r *http.Request) string {
	seq := atomic.AddInt64(&nextUserSeq, 1)
	return fmt.Sprintf("user-%d-%s", seq, r.RemoteAddr)
}

// Server adapts a Hub to net/http, one Hub per sheet.
type Server struct {
	hub    *Hub
	logger *log.Logger
}

func NewServer(e *engine.Engine, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{hub: New(e, logger), logger: logger}
}

// Hub returns the underlying Hub so callers can register an OnUpdate hook
// (persistence, bus fan-out) before traffic starts flowing.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("hub: upgrade failed: %v", err)
		return
	}

	userID := nextUserID(r)
	c, connected, err := s.hub.Join(conn, userID)
	if err != nil {
		s.logger.Printf("hub: join failed: %v", err)
		conn.Close()
		return
	}

	go s.writePump(c)
	c.send <- connected

	defer func() {
		s.hub.Leave(c)
		close(c.send)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.send <- ErrorMsg{Type: MsgError, Message: "malformed message"}
			continue
		}

		s.handleClientMessage(c, msg)
	}
}

func (s *Server) handleClientMessage(c *client, msg ClientMessage) {
	switch msg.Type {
	case MsgUpdateCell:
		idx, err := s.hub.engine.GetIndex(msg.Row, msg.Col)
		if err != nil {
			c.send <- ErrorMsg{Type: MsgError, Message: err.Error()}
			return
		}
		if !s.hub.TryLock(idx, c.userID) {
			c.send <- ErrorMsg{Type: MsgError, Message: "cell is locked by another participant"}
			return
		}
		if err := s.hub.ApplyUpdate(msg.Row, msg.Col, msg.Raw, c.userID); err != nil {
			c.send <- ErrorMsg{Type: MsgError, Message: err.Error()}
		}
	case MsgLockCell:
		idx, err := s.hub.engine.GetIndex(msg.Row, msg.Col)
		if err != nil {
			c.send <- ErrorMsg{Type: MsgError, Message: err.Error()}
			return
		}
		if !s.hub.TryLock(idx, c.userID) {
			c.send <- ErrorMsg{Type: MsgError, Message: "cell is locked by another participant"}
			return
		}
		s.hub.broadcastLock(idx, c.userID)
	case MsgUnlockCell:
		idx, err := s.hub.engine.GetIndex(msg.Row, msg.Col)
		if err != nil {
			c.send <- ErrorMsg{Type: MsgError, Message: err.Error()}
			return
		}
		s.hub.Unlock(idx, c.userID)
		s.hub.broadcastLock(idx, "")
	default:
		c.send <- ErrorMsg{Type: MsgError, Message: "unknown message type: " + msg.Type}
	}
}

func (s *Server) writePump(c *client) {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			s.logger.Printf("hub: write to %s failed: %v", c.userID, err)
			return
		}
	}
}
