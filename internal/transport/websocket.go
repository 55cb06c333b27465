package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gateway-fm/walletbot/pkg/types"
)

const (
	eventBufferSize = 64
	writeTimeout    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Allow requests without Origin header (same-origin or direct)
		}

		originURL, err := url.Parse(origin)
		if err != nil {
			return false
		}

		if originURL.Host == r.Host {
			return true
		}

		// Allow localhost connections (common for development)
		if originURL.Hostname() == "localhost" || originURL.Hostname() == "127.0.0.1" {
			return true
		}

		return false
	},
}

// WebSocketServer streams bot events to connected clients.
type WebSocketServer struct {
	logger *slog.Logger

	// Connected clients
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	// Broadcast channel
	broadcast chan types.Event

	// Done channel for shutdown
	done     chan struct{}
	stopOnce sync.Once
}

// NewWebSocketServer creates a new WebSocket server.
func NewWebSocketServer(logger *slog.Logger) *WebSocketServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketServer{
		logger:    logger,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan types.Event, eventBufferSize),
		done:      make(chan struct{}),
	}
}

// Handler returns the WebSocket HTTP handler.
func (ws *WebSocketServer) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			ws.logger.Error("WebSocket upgrade failed", slog.String("error", err.Error()))
			return
		}

		ws.clientsMu.Lock()
		ws.clients[conn] = true
		total := len(ws.clients)
		ws.clientsMu.Unlock()

		ws.logger.Debug("WebSocket client connected", slog.Int("total_clients", total))

		defer func() {
			ws.clientsMu.Lock()
			delete(ws.clients, conn)
			total := len(ws.clients)
			ws.clientsMu.Unlock()
			conn.Close()

			ws.logger.Debug("WebSocket client disconnected", slog.Int("total_clients", total))
		}()

		// Read messages (mainly for ping/pong)
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					ws.logger.Debug("WebSocket read error", slog.String("error", err.Error()))
				}
				break
			}
		}
	}
}

// Start begins the event broadcasting goroutine.
func (ws *WebSocketServer) Start() {
	go ws.broadcastLoop()
}

// Stop stops the WebSocket server.
func (ws *WebSocketServer) Stop() {
	ws.stopOnce.Do(func() {
		close(ws.done)

		ws.clientsMu.Lock()
		for conn := range ws.clients {
			conn.Close()
		}
		ws.clients = make(map[*websocket.Conn]bool)
		ws.clientsMu.Unlock()
	})
}

// Publish queues an event for broadcast. It never blocks the caller; when
// the buffer is full the event is dropped.
func (ws *WebSocketServer) Publish(ev types.Event) {
	select {
	case ws.broadcast <- ev:
	case <-ws.done:
	default:
		ws.logger.Debug("WebSocket event dropped", slog.String("type", string(ev.Type)))
	}
}

func (ws *WebSocketServer) broadcastLoop() {
	for {
		select {
		case <-ws.done:
			return
		case ev := <-ws.broadcast:
			ws.broadcastEvent(ev)
		}
	}
}

// broadcastEvent sends an event to all connected clients.
func (ws *WebSocketServer) broadcastEvent(ev types.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		ws.logger.Error("Failed to marshal event", slog.String("error", err.Error()))
		return
	}

	ws.clientsMu.RLock()
	defer ws.clientsMu.RUnlock()

	for conn := range ws.clients {
		if err := writeEvent(conn, data); err != nil {
			ws.logger.Debug("Dropping WebSocket client", slog.String("error", err.Error()))
			// Closing unblocks the read loop, which deregisters the client.
			conn.Close()
		}
	}
}

func writeEvent(conn *websocket.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// ClientCount returns the number of connected clients.
func (ws *WebSocketServer) ClientCount() int {
	ws.clientsMu.RLock()
	defer ws.clientsMu.RUnlock()
	return len(ws.clients)
}
