// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides small pieces of shared scaffolding used by
// the coordination daemon and its optional collaborator socket
// surface: a standard JSON stderr logger and a generic CBOR
// request-response Unix socket server with action dispatch,
// connection timeouts, and graceful shutdown.
//
// # Authentication
//
// Socket-level caller authentication is not implemented — physical
// access to the socket path is the trust boundary, matching the
// daemon's loopback-only HTTP surface.
package service
