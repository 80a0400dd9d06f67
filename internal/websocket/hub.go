package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/tutorline/server/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024
)

// HubConfig configures the realtime relay
type HubConfig struct {
	// AllowedOrigins for browser upgrades; "*" allows any. Requests without an
	// Origin header are always accepted.
	AllowedOrigins []string
	// Language passed to speech recognition
	Language string
	VAD      VADConfig
}

// Hub maintains the set of active realtime connections.
type Hub struct {
	// Registered clients.
	clients map[*Client]struct{}

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// stopped is closed when Run returns
	stopped chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	conversation *usecase.ConversationService
	validator    *MessageValidator
	upgrader     websocket.Upgrader
	config       HubConfig

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(conversation *usecase.ConversationService, config HubConfig, logger *zap.Logger) *Hub {
	if config.VAD.SampleRate == 0 {
		config.VAD = DefaultVADConfig()
	}
	if config.Language == "" {
		config.Language = "en-US"
	}

	h := &Hub{
		clients:      make(map[*Client]struct{}),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		stopped:      make(chan struct{}),
		conversation: conversation,
		validator:    NewMessageValidator(),
		config:       config,
		logger:       logger,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.logger.Warn("Rejected websocket origin", zap.String("origin", origin))
	return false
}

// Run starts the hub's main loop. Connections are closed when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("clientID", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client)
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("clientID", client.id))

		case <-ctx.Done():
			h.mu.Lock()
			clients := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.clients = make(map[*Client]struct{})
			h.mu.Unlock()

			for _, c := range clients {
				c.close()
			}
			return
		}
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// ClientCount returns the number of live connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocketWithAuth upgrades a request whose token has already been
// validated and starts a tutoring session for subject.
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, subject string) error {
	conn, err := hub.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := newClient(hub, conn, subject)
	select {
	case hub.register <- client:
	case <-hub.stopped:
		conn.Close()
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server is shutting down")
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.worker()
	go client.readPump()

	return nil
}
