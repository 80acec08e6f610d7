// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package collabsocket is an optional CBOR-framed Unix-socket surface
// for local, non-HTTP collaborators that want the coordination
// kernel's primitives without paying for an HTTP round-trip — e.g. a
// shell hook or editor plugin running on the same host. Each
// connection is exactly one request-response cycle, mirroring
// lib/service/socket.go's SocketServer; streaming operations like
// subscribe are out of scope for this surface and remain HTTP-only.
package collabsocket

import (
	"context"
	"log/slog"

	"github.com/curiositech/port-daddy/internal/agents"
	"github.com/curiositech/port-daddy/internal/activity"
	"github.com/curiositech/port-daddy/internal/changelog"
	"github.com/curiositech/port-daddy/internal/locks"
	"github.com/curiositech/port-daddy/internal/messaging"
	"github.com/curiositech/port-daddy/internal/ports"
	"github.com/curiositech/port-daddy/internal/salvage"
	"github.com/curiositech/port-daddy/internal/sessions"
	"github.com/curiositech/port-daddy/lib/codec"
	"github.com/curiositech/port-daddy/lib/service"
)

// Deps are the domain components the socket surface dispatches to.
type Deps struct {
	Ports     *ports.Ports
	Locks     *locks.Locks
	Messaging *messaging.Messaging
	Agents    *agents.Agents
	Sessions  *sessions.Sessions
	Salvage   *salvage.Salvage
	Activity  *activity.Activity
	Changelog *changelog.Changelog
}

// Config configures a Server.
type Config struct {
	SocketPath string
	Deps       Deps
	Logger     *slog.Logger
}

// Server wraps a service.SocketServer with the coordination kernel's
// actions registered.
type Server struct {
	inner  *service.SocketServer
	logger *slog.Logger
	done   chan error
}

// NewServer constructs a Server with every action registered. Serve
// is not started until Start is called.
func NewServer(cfg Config) (*Server, error) {
	inner := service.NewSocketServer(cfg.SocketPath, cfg.Logger)
	s := &Server{inner: inner, logger: cfg.Logger, done: make(chan error, 1)}
	registerActions(inner, cfg.Deps)
	return s, nil
}

// Start begins serving in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		s.done <- s.inner.Serve(ctx)
	}()
	return nil
}

// Shutdown waits for Serve to return, which happens once ctx (passed
// to Start) is canceled — Serve drains in-flight connections before
// returning.
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case err := <-s.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// decodeAction decodes the action-specific fields of raw into dest,
// skipping the "action" field via codec.Unmarshal's permissive
// unknown-field handling.
func decodeAction(raw []byte, dest any) error {
	return codec.Unmarshal(raw, dest)
}
