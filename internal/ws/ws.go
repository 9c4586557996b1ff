// Package ws pushes liveness session status to a cashier terminal's
// display over a websocket, so the UI can show command progress without
// polling SubmitFrame's response alone.
//
// Built around an upgrade-then-loop shape; this channel is server-push
// only (no client messages are expected), so the read loop exists solely
// to detect disconnects.
package ws

import (
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StatusPush is the payload written to a session's subscribers.
type StatusPush struct {
	Status       string `json:"status"`
	CurrentIndex int    `json:"current_index"`
	BlinkSeen    bool   `json:"blink_seen"`
	ReasonCode   string `json:"reason_code,omitempty"`
}

// Hub fans out session status pushes to any number of connected viewers
// per session id.
type Hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{subs: map[uuid.UUID]map[*websocket.Conn]bool{}}
}

// ServeSessionStatus upgrades the connection and registers it as a
// subscriber for sessionID until the client disconnects.
func (h *Hub) ServeSessionStatus(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = map[*websocket.Conn]bool{}
	}
	h.subs[sessionID][conn] = true
	h.mu.Unlock()

	defer h.unsubscribe(sessionID, conn)

	// Server-push only; the read loop's sole purpose is noticing the peer
	// went away (close, error, or a client message we don't expect).
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) unsubscribe(sessionID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[sessionID], conn)
	if len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
	}
	conn.Close()
}

// Push sends a status update to every subscriber of sessionID. Best-effort:
// a write failure drops that subscriber rather than affecting the caller.
func (h *Hub) Push(sessionID uuid.UUID, status StatusPush) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.subs[sessionID]))
	for c := range h.subs[sessionID] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteJSON(status); err != nil {
			h.unsubscribe(sessionID, c)
		}
	}
}
