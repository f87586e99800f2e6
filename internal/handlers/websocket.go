package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
	"github.com/Inclusist/job-monitor-sub000/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// wsMessage is the envelope broadcast to connected clients.
type wsMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler pushes matching progress events to connected UI
// clients. Each connection gets its own write mutex because gorilla
// connections do not allow concurrent writers.
type WebSocketHandler struct {
	logger      arbor.ILogger
	events      interfaces.EventService
	progress    interfaces.ProgressService
	mu          sync.RWMutex
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex
}

// NewWebSocketHandler creates the handler and subscribes it to progress
// events.
func NewWebSocketHandler(events interfaces.EventService, progressService interfaces.ProgressService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:      logger,
		events:      events,
		progress:    progressService,
		clients:     make(map[*websocket.Conn]bool),
		clientMutex: make(map[*websocket.Conn]*sync.Mutex),
	}
	if events != nil {
		if err := events.Subscribe(interfaces.EventMatchProgress, h.onMatchProgress); err != nil {
			logger.Warn().Err(err).Msg("Failed to subscribe websocket handler to progress events")
		}
	}
	return h
}

// HandleWebSocket upgrades the connection and keeps it registered until
// the client disconnects.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info().Int("clients", count).Msg("WebSocket client connected")

	defer h.removeClient(conn)

	// Replay the latest progress snapshot so a reconnecting client does
	// not wait for the next event.
	if userID := r.URL.Query().Get("user_id"); userID != "" && h.progress != nil {
		if latest := h.progress.Get(userID); latest != nil {
			h.sendTo(conn, wsMessage{Type: "match_progress", Payload: latest})
		}
	}

	// Drain reads; clients only listen, but reading surfaces disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) onMatchProgress(ctx context.Context, event interfaces.Event) error {
	progress, ok := event.Payload.(*models.ProgressEvent)
	if !ok {
		return nil
	}
	h.broadcast(wsMessage{Type: "match_progress", Payload: progress})
	return nil
}

func (h *WebSocketHandler) broadcast(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to marshal websocket message")
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		h.writeData(conn, data)
	}
}

// sendTo delivers one message to a single connection.
func (h *WebSocketHandler) sendTo(conn *websocket.Conn, msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to marshal websocket message")
		return
	}
	h.writeData(conn, data)
}

func (h *WebSocketHandler) writeData(conn *websocket.Conn, data []byte) {
	h.mu.RLock()
	writeMu := h.clientMutex[conn]
	h.mu.RUnlock()
	if writeMu == nil {
		return
	}

	writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err := conn.WriteMessage(websocket.TextMessage, data)
	writeMu.Unlock()

	if err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket write failed, dropping client")
		h.removeClient(conn)
	}
}

func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		h.logger.Info().Int("clients", len(h.clients)).Msg("WebSocket client disconnected")
	}
	h.mu.Unlock()
	conn.Close()
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
