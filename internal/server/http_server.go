package server

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// CreateServer creates an HTTP server for handler with production timeouts.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Serve listens on cfg.Port until ctx is cancelled, then shuts the HTTP
// server and the hub down within timeout.
func (s *Server) Serve(ctx context.Context, timeout time.Duration) error {
	httpServer := CreateServer(s.cfg.Port, s.Routes())
	s.Start()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", httpServer.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	shutdownErr := s.shutdownHTTP(httpServer, timeout)
	hubErr := s.hub.Shutdown(timeout)
	return errors.Join(serveErr, shutdownErr, hubErr)
}

func (s *Server) shutdownHTTP(server *http.Server, timeout time.Duration) error {
	s.log.Info().Msg("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("HTTP server shutdown")
		return err
	}

	s.log.Info().Msg("HTTP server shutdown completed")
	return nil
}
