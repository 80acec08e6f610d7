// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server listens on a single TCP address and serves the coordination
// daemon's HTTP surface, grounded on proxy/server.go's listen/serve/
// shutdown lifecycle (simplified to one listener — this daemon has no
// agent/admin socket split).
type Server struct {
	address    string
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Address string
	Handler *Handler
	Logger  *slog.Logger
}

// NewServer constructs a Server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("httpapi: listen address is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		address: cfg.Address,
		logger:  logger,
		httpServer: &http.Server{
			Handler:      cfg.Handler.Handler(),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // SSE streams hold connections open indefinitely.
		},
	}, nil
}

// Start begins listening and serving in a background goroutine.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("httpapi: listen on %s: %w", s.address, err)
	}
	s.listener = listener
	s.logger.Info("httpapi: server started", "address", s.address)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("httpapi: server error", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("httpapi: shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the actual listening address, useful when Address was
// configured as "host:0" for an ephemeral port.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.address
	}
	return s.listener.Addr().String()
}
