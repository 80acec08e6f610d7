// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the sole owner of the coordination daemon's
// persistent state: a single SQLite database file opened in WAL mode.
// It exposes typed accessors to the domain components; it never
// interprets domain semantics itself.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/curiositech/port-daddy/lib/clock"
	"github.com/curiositech/port-daddy/lib/sqlitepool"
)

// Config holds the parameters for opening the store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. A
	// ":memory:" path works only with PoolSize 1 (see sqlitepool.Config).
	Path string

	// PoolSize is forwarded to sqlitepool.Config.PoolSize.
	PoolSize int

	// Clock is used for all timestamps written by the store's
	// higher-level components. The store itself is time-agnostic;
	// callers pass already-computed millisecond timestamps.
	Clock clock.Clock

	Logger *slog.Logger
}

// Store wraps a pooled SQLite connection and the schema it manages.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open creates (if necessary) and opens the database file, applies
// the schema idempotently, and returns a ready Store. The caller must
// call Close when done.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			// Real cascade-delete foreign keys exist between
			// sessions, notes, and file_claims, so unlike the
			// telemetry store this daemon needs enforcement on.
			if err := sqlitex.ExecuteTransient(conn, "PRAGMA foreign_keys=ON", nil); err != nil {
				return fmt.Errorf("enabling foreign keys: %w", err)
			}
			if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
				return fmt.Errorf("applying schema: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", cfg.Path, err)
	}

	return &Store{pool: pool, clock: clk, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Clock returns the clock this store (and its callers) should use for
// timestamps.
func (s *Store) Clock() clock.Clock { return s.clock }

// withConn borrows a connection, runs fn, and returns it to the pool.
func (s *Store) withConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: acquiring connection: %w", err)
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

// withTx borrows a connection, begins an immediate transaction, runs
// fn, and commits or rolls back depending on the returned error.
func (s *Store) withTx(ctx context.Context, fn func(conn *sqlite.Conn) error) (err error) {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		endTransaction, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return fmt.Errorf("store: beginning transaction: %w", err)
		}
		defer endTransaction(&err)

		return fn(conn)
	})
}
