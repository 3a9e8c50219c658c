package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collab-service/internal/observability"
)

type client struct {
	info ConnInfo

	// serializes writes; snapshot and feed-driven frames come from
	// different goroutines
	writeMu sync.Mutex
}

// Hub tracks active websocket connections per conversation room and owns all
// frame writes to them.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*websocket.Conn]*client
	logger *zap.SugaredLogger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{rooms: make(map[string]map[*websocket.Conn]*client), logger: logger}
}

// Add registers a connection in a conversation room.
func (h *Hub) Add(groupID string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[groupID]; !ok {
		h.rooms[groupID] = make(map[*websocket.Conn]*client)
	}
	h.rooms[groupID][conn] = &client{info: info}
}

// Remove deregisters a connection. Empty rooms are dropped.
func (h *Hub) Remove(groupID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[groupID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, groupID)
		}
	}
}

// RoomSize reports how many connections a conversation room holds.
func (h *Hub) RoomSize(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[groupID])
}

// Send writes one event frame to a single connection. A failed write closes
// and deregisters the connection.
func (h *Hub) Send(groupID string, conn *websocket.Conn, event Event) {
	h.mu.RLock()
	cl := h.rooms[groupID][conn]
	h.mu.RUnlock()
	if cl == nil {
		return
	}
	h.write(groupID, conn, cl, event)
}

// Broadcast writes one event frame to every connection in a room.
func (h *Hub) Broadcast(groupID string, event Event) {
	h.mu.RLock()
	targets := make(map[*websocket.Conn]*client, len(h.rooms[groupID]))
	for conn, cl := range h.rooms[groupID] {
		targets[conn] = cl
	}
	h.mu.RUnlock()

	for conn, cl := range targets {
		h.write(groupID, conn, cl, event)
	}
}

func (h *Hub) write(groupID string, conn *websocket.Conn, cl *client, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Errorw("websocket event marshal failed", "type", event.Type, "error", err)
		return
	}

	cl.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, payload)
	cl.writeMu.Unlock()
	if err != nil {
		h.logger.Warnw("websocket write failed",
			"group_id", groupID, "conn_id", cl.info.ConnID, "error", err)
		conn.Close()
		h.Remove(groupID, conn)
		observability.IncWSEvent("ws_error")
	}
}
