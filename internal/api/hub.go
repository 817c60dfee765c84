package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stablelink/stable-core/internal/infrastructure/logging"
)

// Hub tracks owner WebSocket connections grouped per user and delivers
// domain notices to every connection of one owner.
//
// It satisfies the Broadcaster collaborator the feeding and stream
// services publish through.
type Hub struct {
	logger  *logging.Logger
	metrics *Metrics

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	byUser  map[string]map[*WSClient]struct{}
}

// NewHub creates a WebSocket hub. metrics may be nil in tests.
func NewHub(logger *logging.Logger, metrics *Metrics) *Hub {
	return &Hub{
		logger:  logger.With("component", "hub"),
		metrics: metrics,
		clients: make(map[*WSClient]struct{}),
		byUser:  make(map[string]map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub and its owner's room.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	room, ok := h.byUser[client.userID]
	if !ok {
		room = make(map[*WSClient]struct{})
		h.byUser[client.userID] = room
	}
	room[client] = struct{}{}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.connectedClients.Inc()
	}
	h.logger.Debug("websocket client connected",
		"user_id", client.userID,
		"clients", h.ClientCount())
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	if room, ok := h.byUser[client.userID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.byUser, client.userID)
		}
	}
	h.mu.Unlock()

	if existed {
		close(client.send)
		if h.metrics != nil {
			h.metrics.connectedClients.Dec()
		}
	}
	h.logger.Debug("websocket client disconnected",
		"user_id", client.userID,
		"clients", h.ClientCount())
}

// Send delivers a domain notice to every connection of one owner.
// Unknown owners and empty rooms are a silent no-op; slow connections
// drop the notice rather than block the caller.
func (h *Hub) Send(ownerID, eventType string, payload any) {
	msg := wsReply{
		Type:      WSTypeEvent,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshalling notice", "event_type", eventType, "error", err)
		return
	}

	// Snapshot the room under the lock, release before sending
	h.mu.RLock()
	room := h.byUser[ownerID]
	clients := make([]*WSClient, 0, len(room))
	for client := range room {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.trySend(data)
	}
	if len(clients) > 0 && h.metrics != nil {
		h.metrics.noticesSent.Add(float64(len(clients)))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
	h.byUser = make(map[string]map[*WSClient]struct{})
}
