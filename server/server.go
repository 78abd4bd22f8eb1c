package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/rs/zerolog"
)

type Server struct {
	handler       http.Handler
	listenAddress string
	server        *http.Server
	listener      net.Listener

	logger *zerolog.Logger
}

func NewServer(
	listenAddress string,
	handler http.Handler,
	logger *zerolog.Logger,
) (*Server, error) {

	server := &Server{
		handler:       handler,
		listenAddress: listenAddress,
		logger:        logger,
		server: &http.Server{
			Addr:    listenAddress,
			Handler: handler,
		},
	}

	return server, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Listen binds the listen address. It is called by Serve if it has not already been called. Calling it separately
// allows the caller to learn the bound address with Addr before serving.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.listenAddress)
	if err != nil {
		return err
	}
	s.listener = listener

	return nil
}

// Addr returns the bound address. It returns nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Serve() error {
	err := s.Listen()
	if err != nil {
		return err
	}

	s.logger.Info().Str("listen_address", s.listener.Addr().String()).Msg("Starting HTTP server")

	err = s.server.Serve(s.listener)
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Stopping HTTP server")
	s.server.SetKeepAlivesEnabled(false)
	err := s.server.Shutdown(ctx)
	if err != nil {
		return err
	}

	return nil
}
