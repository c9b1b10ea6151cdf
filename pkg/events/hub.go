package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Hub manages WebSocket connections for the live outcome stream. Each
// process has one Hub instance; every connected client receives every
// broadcast payload (no per-channel subscriptions).
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*connection

	// Write timeout for WebSocket sends
	writeTimeout time.Duration
}

type connection struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a Hub with the given per-send write timeout.
func NewHub(writeTimeout time.Duration) *Hub {
	return &Hub{
		connections:  make(map[string]*connection),
		writeTimeout: writeTimeout,
	}
}

// HandleConnection manages the lifecycle of a single WebSocket connection.
// Called by the WebSocket HTTP handler after upgrade. Blocks until the
// connection closes.
func (h *Hub) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &connection{id: connID, conn: conn, ctx: ctx, cancel: cancel}

	h.mu.Lock()
	h.connections[connID] = c
	h.mu.Unlock()
	slog.Debug("WebSocket client connected", "connection_id", connID)

	defer func() {
		h.mu.Lock()
		delete(h.connections, connID)
		h.mu.Unlock()
		cancel()
		slog.Debug("WebSocket client disconnected", "connection_id", connID)
	}()

	h.send(c, map[string]string{
		"type":          "connection.established",
		"connection_id": connID,
	})

	// Read loop — clients send nothing meaningful; reading drains pings and
	// detects close.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// Broadcast marshals payload once and sends it to every connected client.
// Send failures close the offending connection; they never block the caller
// beyond the write timeout.
func (h *Hub) Broadcast(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal broadcast payload", "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.write(c, data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *Hub) send(c *connection, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal payload", "connection_id", c.id, "error", err)
		return
	}
	h.write(c, data)
}

func (h *Hub) write(c *connection, data []byte) {
	ctx, cancel := context.WithTimeout(c.ctx, h.writeTimeout)
	defer cancel()

	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Warn("WebSocket write failed, closing connection",
			"connection_id", c.id, "error", err)
		c.cancel()
	}
}
