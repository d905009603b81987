// Package gateway exposes the relay over HTTP: health and stats endpoints
// and a websocket entry for browser clients.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/wtask/relay/internal/chat/broker"
	"github.com/wtask/relay/internal/chat/wire"
	"github.com/wtask/relay/pkg/logging"
)

// Keeper - part of relay used by gateway.
type Keeper interface {
	KeepPeer(peer broker.Peer) error
	Len() int
}

// Server - HTTP side of the relay.
type Server struct {
	keeper   Keeper
	logger   *slog.Logger
	origin   string
	started  time.Time
	upgrader websocket.Upgrader
}

// Option - gateway server option.
type Option func(s *Server)

// WithLogger - attach logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logging.OrDiscard(logger) }
}

// WithOrigin - accept websocket handshakes from the given origin only.
// Any origin is accepted by default.
func WithOrigin(origin string) Option {
	return func(s *Server) { s.origin = origin }
}

// New - builds gateway for relay.
func New(keeper Keeper, options ...Option) *Server {
	s := &Server{
		keeper:  keeper,
		logger:  logging.Discard(),
		started: time.Now(),
	}
	for _, option := range options {
		option(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  wire.DefaultMaxMessageSize,
		WriteBufferSize: wire.DefaultMaxMessageSize,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	return s.origin == "" || r.Header.Get("Origin") == s.origin
}

// Router - creates chi.Router with gateway routes.
func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/ws", s.handleWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "chatsrv",
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"clients": s.keeper.Len(),
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has replied with http error already
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(wire.DefaultMaxMessageSize)

	s.logger.Info("new websocket connection", "addr", conn.RemoteAddr().String())
	peer := &wsPeer{conn}
	if err := s.keeper.KeepPeer(peer); err != nil {
		s.logger.Warn("websocket connection rejected", "addr", conn.RemoteAddr().String(), "error", err)
		peer.Close()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
