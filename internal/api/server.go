package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Server serves a Router over HTTP on a loopback address.
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener
}

// NewServer creates an HTTP server for rt.
func NewServer(addr string, rt *Router, logger zerolog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           rt.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "api-server").Logger(),
	}
}

// SetListener sets a pre-created listener, typically from socket activation.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start serves in the background. The listener is bound before returning so
// callers can report readiness.
func (s *Server) Start() error {
	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.server.Addr)
		if err != nil {
			return err
		}
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting API server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping API server")
	return s.server.Shutdown(ctx)
}
