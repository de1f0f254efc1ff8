package webui

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/logger"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/metrics"
)

const (
	socketWriteTimeout = 5 * time.Second
	socketSendBuffer   = 8
)

// Hub fans dashboard push messages out to the connected browser sockets.
// Every message is a JSON envelope {"type": ..., "data": ...}. A client too
// slow to drain its buffer is disconnected rather than stalling the rest.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]chan []byte
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
}

// NewHub creates an empty hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[string]chan []byte),
		upgrader: websocket.Upgrader{
			// All origins accepted: the dashboard shell may be served from a
			// different port than this API during development, and the socket
			// carries no privileged operations, only the push feed.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		metrics: m,
	}
}

// ServeHTTP upgrades the connection and pumps messages until the client goes
// away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebUI", "websocket upgrade failed: %v", err)
		return
	}

	id := uuid.NewString()
	send := make(chan []byte, socketSendBuffer)

	h.mu.Lock()
	h.clients[id] = send
	count := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.SocketClients.Store(uint64(count))
	}
	logger.Debug("WebUI", "socket %s connected (total: %d)", id, count)

	go h.writePump(conn, send)
	h.readPump(conn)
	h.drop(id)
}

// Notify broadcasts one envelope to every connected socket. Shaped to plug
// straight into the dashboard manager's notifier hook.
func (h *Hub) Notify(event string, payload any) {
	data, err := json.Marshal(map[string]any{"type": event, "data": payload})
	if err != nil {
		logger.Error("WebUI", "push marshal failed: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, send := range h.clients {
		select {
		case send <- data:
		default:
			logger.Debug("WebUI", "socket %s full, message dropped", id)
		}
	}
}

// ClientCount returns the number of connected sockets.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every socket.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, send := range h.clients {
		close(send)
		delete(h.clients, id)
	}
	if h.metrics != nil {
		h.metrics.SocketClients.Store(0)
	}
}

func (h *Hub) drop(id string) {
	h.mu.Lock()
	if send, ok := h.clients[id]; ok {
		close(send)
		delete(h.clients, id)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.SocketClients.Store(uint64(count))
	}
	logger.Debug("WebUI", "socket %s disconnected (remaining: %d)", id, count)
}

// readPump discards inbound messages; the socket is push-only. It returns
// when the client closes or errors.
func (h *Hub) readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, send <-chan []byte) {
	defer conn.Close()
	for data := range send {
		_ = conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
}
