package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stablelink/stable-core/internal/auth"
	"github.com/stablelink/stable-core/internal/infrastructure/config"
)

// WebSocket message types.
const (
	WSTypeEvent    = "event"
	WSTypeResponse = "response"
	WSTypeError    = "error"
	WSTypePing     = "ping"
	WSTypePong     = "pong"

	// Inbound commands from owner clients.
	WSTypeFeedNow     = "FEED_NOW"
	WSTypeStartStream = "START_STREAM"
	WSTypeStopStream  = "STOP_STREAM"
	WSTypeLogout      = "LOGOUT"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// wsCommandTimeout bounds the domain work behind one socket command.
	wsCommandTimeout = 10 * time.Second
)

// WSMessage represents a message sent to or from a WebSocket client.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// wsReply is the outbound counterpart of WSMessage with a free payload.
type wsReply struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSErrorPayload is the payload of error frames. Code carries the
// domain error class so clients can react without parsing text.
type WSErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FeedNowPayload is the payload of FEED_NOW commands.
type FeedNowPayload struct {
	HorseID  string  `json:"horseId"`
	AmountKg float64 `json:"amountKg"`
}

// StreamPayload is the payload of START_STREAM and STOP_STREAM commands.
type StreamPayload struct {
	HorseID string `json:"horseId"`
}

// WSClient represents one authenticated owner connection.
type WSClient struct {
	server *Server
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte

	connID string
	userID string
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleClientSocket authenticates and upgrades an owner connection.
// Identity travels as a JWT in the token query parameter or an
// Authorization bearer header.
func (s *Server) handleClientSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		writeUnauthorized(w, "token is required")
		return
	}

	claims, err := auth.ParseToken(token, s.secCfg.JWT.Secret, s.secCfg.JWT.Issuer)
	if err != nil {
		writeUnauthorized(w, "invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		server: s,
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, wsSendBufferSize),
		connID: uuid.NewString(),
		userID: claims.Subject,
	}

	s.hub.Register(client)

	// Occupancy drives device stream lifecycles
	if err := s.sessions.Connect(r.Context(), client.connID, client.userID); err != nil {
		s.logger.Error("joining session rooms",
			"user_id", client.userID,
			"error", err)
	}

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.server.sessions.Disconnect(c.connID)
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes one incoming frame.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", ErrCodeValidation, "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeFeedNow:
		c.handleFeedNow(msg)
	case WSTypeStartStream:
		c.handleStartStream(msg)
	case WSTypeStopStream:
		c.handleStopStream(msg)
	case WSTypeLogout:
		c.handleLogout(msg)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, ErrCodeValidation, "unknown message type: "+msg.Type)
	}
}

// handleFeedNow starts a manual feeding for the owner.
func (c *WSClient) handleFeedNow(msg WSMessage) {
	var p FeedNowPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.HorseID == "" {
		c.sendError(msg.ID, ErrCodeValidation, "FEED_NOW requires horseId and amountKg")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsCommandTimeout)
	defer cancel()

	f, err := c.server.feedings.Start(ctx, p.HorseID, p.AmountKg, c.userID)
	if err != nil {
		c.sendDomainError(msg.ID, err)
		return
	}

	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{
		"feedingId": f.ID,
		"status":    string(f.Status),
	})
}

// handleStartStream begins streaming a horse's camera.
func (c *WSClient) handleStartStream(msg WSMessage) {
	var p StreamPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.HorseID == "" {
		c.sendError(msg.ID, ErrCodeValidation, "START_STREAM requires horseId")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsCommandTimeout)
	defer cancel()

	if err := c.server.streams.Start(ctx, p.HorseID, c.userID); err != nil {
		c.sendDomainError(msg.ID, err)
		return
	}
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{"horseId": p.HorseID})
}

// handleStopStream ends the owner's stream of a horse.
func (c *WSClient) handleStopStream(msg WSMessage) {
	var p StreamPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.HorseID == "" {
		c.sendError(msg.ID, ErrCodeValidation, "STOP_STREAM requires horseId")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsCommandTimeout)
	defer cancel()

	if err := c.server.streams.Stop(ctx, p.HorseID, c.userID); err != nil {
		c.sendDomainError(msg.ID, err)
		return
	}
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{"horseId": p.HorseID})
}

// handleLogout stops the owner's streams immediately and closes the
// connection.
func (c *WSClient) handleLogout(msg WSMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), wsCommandTimeout)
	defer cancel()

	c.server.sessions.Logout(ctx, c.connID)
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{"loggedOut": true})

	// readPump's deferred Disconnect finds nothing left to do
	c.conn.Close()
}

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during
// broadcast) and full buffers (slow client).
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

// sendResponse sends a response message to the client.
func (c *WSClient) sendResponse(id, msgType string, payload any) {
	msg := wsReply{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError sends an error frame with an explicit code.
func (c *WSClient) sendError(id, code, message string) {
	msg := wsReply{
		Type:      WSTypeError,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   WSErrorPayload{Code: code, Message: message},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendDomainError classifies a domain error into an error frame.
func (c *WSClient) sendDomainError(id string, err error) {
	_, code := classifyError(err)
	message := err.Error()
	if code == ErrCodeInternal {
		c.hub.logger.Error("websocket command failed", "error", err)
		message = "internal error"
	}
	c.sendError(id, code, message)
}
