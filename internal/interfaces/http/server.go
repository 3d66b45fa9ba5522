package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/nfe-ingest/pkg/errors"
)

// Server runs the ops endpoints in the background of a run.
type Server struct {
	srv     *http.Server
	handler http.Handler
	logger  logging.Logger

	mu   sync.Mutex
	addr string
	done chan error
}

func NewServer(addr string, handler http.Handler, logger logging.Logger) *Server {
	return &Server{
		handler: handler,
		logger:  logging.OrDefault(logger).Named("ops"),
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start binds the listen address and serves in a goroutine. It returns once
// the listener is open so bind errors surface to the caller.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeConfiguration, "ops server listen failed").
			WithDetail("addr=" + s.srv.Addr)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.done = make(chan error, 1)
	done := s.done
	s.mu.Unlock()

	s.logger.Info("Ops server listening", logging.String("addr", s.addr))
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			s.logger.Error("Ops server stopped", logging.Err(err))
		}
		done <- err
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "ops server shutdown failed")
	}

	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()
	if done != nil {
		select {
		case err := <-done:
			if err != nil {
				return apperrors.Wrap(err, apperrors.CodeInternal, "ops server failed")
			}
		case <-ctx.Done():
			return apperrors.Wrap(ctx.Err(), apperrors.CodeCanceled, "ops server shutdown interrupted")
		}
	}
	s.logger.Info("Ops server stopped")
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}
