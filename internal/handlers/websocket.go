package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/relay/internal/common"
	"github.com/ternarybob/relay/internal/interfaces"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Producer connects from the edge host, not a browser origin
	},
}

// wsMessage is the frame pushed to connected producers.
type wsMessage struct {
	Type    string      `json:"type"`
	Topic   string      `json:"topic,omitempty"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler relays outcome and breaker events to connected
// producer clients.
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	visionThrottler  *rate.Limiter // Vision results arrive at frame rate; cap the broadcast rate
	serverInstanceID string        // Clients use this to detect server restarts
}

// NewWebSocketHandler creates the handler and subscribes it to the
// event bus.
func NewWebSocketHandler(events interfaces.EventService, config *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		serverInstanceID: uuid.New().String(),
	}

	if config != nil && config.VisionThrottle != "" {
		if interval, err := time.ParseDuration(config.VisionThrottle); err == nil && interval > 0 {
			h.visionThrottler = rate.NewLimiter(rate.Every(interval), 1)
		} else if err != nil {
			logger.Warn().
				Err(err).
				Str("interval", config.VisionThrottle).
				Msg("Failed to parse vision throttle interval - throttler disabled")
		}
	}

	for _, eventType := range []interfaces.EventType{
		interfaces.EventOffloadResult,
		interfaces.EventBreakerStateChanged,
		interfaces.EventQueueRejected,
	} {
		if err := events.Subscribe(eventType, h.onEvent); err != nil {
			logger.Warn().
				Err(err).
				Str("event_type", string(eventType)).
				Msg("Failed to subscribe websocket handler")
		}
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")
	return h
}

// HandleWebSocket upgrades GET /ws connections.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().
		Str("remote", r.RemoteAddr).
		Int("clients", clientCount).
		Msg("WebSocket client connected")

	// Tell the client which server instance it reached.
	h.send(conn, wsMessage{
		Type:    "hello",
		Payload: map[string]string{"server_instance_id": h.serverInstanceID},
	})

	// Read loop only to detect disconnect; clients do not send data.
	go func() {
		defer h.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *WebSocketHandler) onEvent(_ context.Context, event interfaces.Event) error {
	// Vision frame results can arrive faster than clients care to
	// render; drop excess broadcasts.
	if event.Type == interfaces.EventOffloadResult && strings.HasPrefix(event.Topic, "result.vision") {
		if h.visionThrottler != nil && !h.visionThrottler.Allow() {
			return nil
		}
	}

	h.broadcast(wsMessage{
		Type:    string(event.Type),
		Topic:   event.Topic,
		Payload: event.Payload,
	})
	return nil
}

func (h *WebSocketHandler) broadcast(msg wsMessage) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		h.send(conn, msg)
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, msg wsMessage) {
	h.mu.RLock()
	mutex, ok := h.clientMutex[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}

	// Gorilla allows one concurrent writer per connection.
	mutex.Lock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err := conn.WriteJSON(msg)
	mutex.Unlock()

	if err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket write failed, dropping client")
		h.removeClient(conn)
	}
}

func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, conn)
	delete(h.clientMutex, conn)
	clientCount := len(h.clients)
	h.mu.Unlock()

	conn.Close()
	h.logger.Info().Int("clients", clientCount).Msg("WebSocket client disconnected")
}

// ClientCount returns the number of connected producer clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
