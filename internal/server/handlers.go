package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Server bundles the hub with the HTTP surface that feeds it.
type Server struct {
	cfg      Config
	hub      *Hub
	origins  *originPolicy
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// New builds a Server for cfg. Call Start before serving requests.
func New(cfg Config, log zerolog.Logger, opts ...HubOption) (*Server, error) {
	hub, err := NewHub(cfg, log.With().Str("component", "hub").Logger(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create hub: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		hub:     hub,
		origins: newOriginPolicy(cfg.AllowedOrigins, log.With().Str("component", "origin").Logger()),
		log:     log.With().Str("component", "http").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s, nil
}

// Start runs the hub in its own goroutine.
func (s *Server) Start() {
	go s.hub.Run()
	s.log.Info().Msg("hub started and ready to manage WebSocket connections")
}

// Hub returns the coordinator behind the server.
func (s *Server) Hub() *Hub {
	return s.hub
}

// WebSocketHandler upgrades the request and hands the connection to the hub,
// which launches its read and write pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := newClient(uuid.NewString(), conn, s.hub, r.RemoteAddr)
	if !s.hub.enter(client) {
		_ = conn.Close()
	}
}

// UsersHandler returns the current online list as JSON.
func (s *Server) UsersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(usersFact(s.hub.Registry().Snapshot())); err != nil {
		s.log.Error().Err(err).Msg("write users response")
	}
}

// HealthHandler responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "GoChat server is running!")
}
