package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Server is the admin HTTP listener
type Server struct {
	srv *http.Server
	ln  net.Listener
}

func NewServer(address string, port int, handlers *AdminHandlers) *Server {
	mux := http.NewServeMux()
	RegisterRoutes(mux, handlers)
	return &Server{
		srv: &http.Server{
			Addr:              net.JoinHostPort(address, fmt.Sprint(port)),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.ln = ln

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Admin server stopped")
		}
	}()

	log.Info().Str("address", ln.Addr().String()).Msg("Admin server listening")
	return nil
}

// Addr is the bound address, valid after Start
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
