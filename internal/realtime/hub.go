// Package realtime streams sync lifecycle events to operator dashboards over WebSocket.
// Events are published to Redis so that runs in the worker reach clients of every
// server instance.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
)

// Event names.
const (
	EventSyncStarted  = "sync.started"
	EventSyncFinished = "sync.finished"
)

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event       string          `json:"event"`
	OrganizerID uuid.UUID       `json:"organizer_id"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Hub maintains the connected dashboard clients and broadcasts messages to them.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("dashboard client connected", zap.String("client_id", c.ID), zap.String("subject", c.Subject))
}

// Unregister removes a client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	h.logger.Debug("dashboard client disconnected", zap.String("client_id", c.ID))
}

// Broadcast sends msg to every client watching its organizer. Slow clients miss messages.
func (h *Hub) Broadcast(msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.OrganizerID != uuid.Nil && c.OrganizerID != msg.OrganizerID {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
