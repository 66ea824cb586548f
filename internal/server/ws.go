package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local client
	},
}

// Hub fans prediction and transcript events out to websocket clients.
type Hub struct {
	log     *logrus.Entry
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

// NewHub creates an empty Hub.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		log:     log.WithField("component", "stream"),
		clients: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP upgrades the connection and keeps it registered until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Drain client messages to notice disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends one JSON message to every connected client. Writes are
// serialized under the lock; a failed write drops that client's message and
// the read loop will reap the connection.
func (h *Hub) Broadcast(v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(v); err != nil {
			h.log.WithError(err).Debug("websocket write failed")
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
