package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/arbiterlabs/arbiter/internal/config"
	"github.com/arbiterlabs/arbiter/pkg/lifecycle"
)

// httpServer owns the listener and drains in-flight requests on shutdown.
type httpServer struct {
	srv             *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

func newHTTPServer(cfg *config.ServerConfig, handler http.Handler, logger *slog.Logger) *httpServer {
	return &httpServer{
		srv: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeoutDuration(),
			WriteTimeout: cfg.WriteTimeoutDuration(),
		},
		logger:          logger.With("system", "http"),
		shutdownTimeout: cfg.ShutdownTimeoutDuration(),
	}
}

func (s *httpServer) Start(lc *lifecycle.Coordinator) error {
	go s.listen()

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		s.shutdown()
	})

	return nil
}

func (s *httpServer) listen() {
	s.logger.Info("server listening", "addr", s.srv.Addr)

	err := s.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("server error", "error", err)
	}
}

func (s *httpServer) shutdown() {
	s.logger.Info("shutting down server", "timeout", s.shutdownTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Error("server shutdown error", "error", err)
		return
	}

	s.logger.Info("server shutdown complete")
}
