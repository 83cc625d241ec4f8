package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Server exposes the Prometheus endpoint on its own port, separate from any
// application traffic.
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics server serving the handler at /metrics.
func NewServer(port int, handler http.Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// ListenAndServe blocks serving the metrics endpoint until Shutdown.
// A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
