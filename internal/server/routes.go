package server

import "net/http"

// Routes returns a ServeMux with the health check, the WebSocket endpoint
// and the online list.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/api/users", s.UsersHandler)
	return mux
}
