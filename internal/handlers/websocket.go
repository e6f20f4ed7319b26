// -----------------------------------------------------------------------
// WebSocket Handler - live pipeline event stream
// Fans pipeline events out to connected clients through per-connection
// send buffers. A slow consumer is dropped rather than allowed to stall
// the broadcast path.
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/interfaces"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period, must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Clients only send
	// keepalive traffic, so this stays small.
	maxMessageSize = 512

	// Per-client send buffer. A client that falls this far behind the
	// event stream is disconnected.
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins, the server binds to localhost
	},
}

// WSMessage is the envelope for every frame sent to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// LogEntry is the payload of a "log" frame relayed to clients
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// wsClient is one connected websocket peer
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WebSocketHandler manages websocket connections and relays pipeline
// events to them
type WebSocketHandler struct {
	events  interfaces.EventService
	logger  arbor.ILogger
	exclude map[string]bool

	mu      sync.RWMutex
	clients map[*wsClient]bool

	// serverInstanceID lets clients detect a server restart and resync
	serverInstanceID string
}

// NewWebSocketHandler creates a websocket handler subscribed to the
// pipeline event stream. Event types listed in the config are never
// broadcast.
func NewWebSocketHandler(events interfaces.EventService, logger arbor.ILogger, cfg *common.WebSocketConfig) *WebSocketHandler {
	exclude := make(map[string]bool)
	if cfg != nil {
		for _, eventType := range cfg.ExcludeEvents {
			exclude[eventType] = true
		}
	}

	h := &WebSocketHandler{
		events:           events,
		logger:           logger,
		exclude:          exclude,
		clients:          make(map[*wsClient]bool),
		serverInstanceID: uuid.New().String(),
	}

	if err := h.subscribeToPipelineEvents(); err != nil {
		logger.Error().Err(err).Msg("Failed to subscribe websocket handler to events")
	}

	return h
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().
		Str("remote_addr", r.RemoteAddr).
		Int("clients", count).
		Msg("WebSocket client connected")

	h.queueHello(client)

	go h.writePump(client)
	h.readPump(client)
}

// queueHello enqueues the greeting frame before the pumps start
func (h *WebSocketHandler) queueHello(client *wsClient) {
	hello := WSMessage{
		Type: "hello",
		Payload: map[string]string{
			"server_instance_id": h.serverInstanceID,
			"version":            common.GetVersion(),
		},
	}
	data, err := json.Marshal(hello)
	if err != nil {
		return
	}
	client.send <- data
}

// readPump consumes frames from the peer until the connection drops.
// Inbound payloads are discarded, the stream is one-way, but reading
// keeps pong handling alive.
func (h *WebSocketHandler) readPump(client *wsClient) {
	defer func() {
		h.removeClient(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
	}
}

// writePump drains the client's send buffer and keeps the connection
// alive with periodic pings
func (h *WebSocketHandler) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast sends a message to every connected client. Clients whose
// send buffer is full are dropped after the sweep.
func (h *WebSocketHandler) Broadcast(messageType string, payload interface{}) {
	data, err := json.Marshal(WSMessage{Type: messageType, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", messageType).Msg("Failed to marshal websocket message")
		return
	}

	var slow []*wsClient

	h.mu.RLock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn().Msg("Dropping slow websocket client")
		h.removeClient(client)
		client.conn.Close()
	}
}

// BroadcastLog relays a server log line to every connected client
func (h *WebSocketHandler) BroadcastLog(entry LogEntry) {
	h.Broadcast("log", entry)
}

// removeClient unregisters a client and closes its send channel. Safe
// to call more than once for the same client.
func (h *WebSocketHandler) removeClient(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.logger.Info().Int("clients", len(h.clients)).Msg("WebSocket client disconnected")
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client, used during server shutdown
func (h *WebSocketHandler) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]bool)
	h.mu.Unlock()

	for client := range clients {
		close(client.send)
	}

	if len(clients) > 0 {
		h.logger.Info().Int("clients", len(clients)).Msg("Closed all websocket connections")
	}
}

// subscribeToPipelineEvents relays every pipeline event type onto the
// websocket stream using the event type as the message type
func (h *WebSocketHandler) subscribeToPipelineEvents() error {
	if h.events == nil {
		return nil
	}

	eventTypes := []interfaces.EventType{
		interfaces.EventPipelinePhase,
		interfaces.EventIngestStarted,
		interfaces.EventIngestFinished,
		interfaces.EventDocumentStored,
		interfaces.EventEmailSynced,
		interfaces.EventEmbeddingTriggered,
		interfaces.EventQueryStarted,
		interfaces.EventQueryFinished,
	}

	for _, eventType := range eventTypes {
		if h.exclude[string(eventType)] {
			continue
		}
		err := h.events.Subscribe(eventType, func(ctx context.Context, event interfaces.Event) error {
			h.Broadcast(string(event.Type), event.Payload)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", eventType, err)
		}
	}

	return nil
}
