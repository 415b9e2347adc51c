package relay

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/harichselvamc/peertopeer/internal/logging"
	"github.com/harichselvamc/peertopeer/internal/store"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// The relay carries no secrets and rooms are capability URLs, so
	// cross-origin browser clients are accepted.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server exposes a signaling store Backend over WebSocket. Every
// connection gets an isolated handle with its own disconnect hooks.
type Server struct {
	backend *store.Backend
	log     *slog.Logger
}

// NewServer creates a relay server around a fresh in-memory backend.
func NewServer() *Server {
	return &Server{
		backend: NewBackend(),
		log:     logging.Component("relay"),
	}
}

// NewBackend creates the store backend a relay serves. Split out so
// tests can reach the backend directly.
func NewBackend() *store.Backend {
	return store.NewBackend()
}

// Handler returns the http.Handler serving the relay: the store
// protocol on /ws and a liveness probe on /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWs)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling relay is healthy."))
}

// handleWs upgrades the HTTP connection and starts the read and write
// pumps that manage the client's lifecycle.
func (s *Server) handleWs(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade connection", "error", err)
		return
	}

	c := &conn{
		ws:     ws,
		handle: s.backend.Connect(),
		log:    s.log.With("remote", ws.RemoteAddr().String()),
		send:   make(chan *store.Frame, 256),
		done:   make(chan struct{}),
		subs:   make(map[uint64]*store.Subscription),
	}

	s.log.Debug("client connected", "remote", ws.RemoteAddr())

	go c.writePump()
	go c.readPump()
}
