// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/curiositech/port-daddy/internal/kernelerr"
)

// Service is a row of the services table: an identity→port
// assignment.
type Service struct {
	Identity   string
	Port       int
	PID        *int64
	ClaimedAt  int64
	LastSeen   int64
	ExpiresAt  *int64
	HealthPath *string
	Endpoints  map[string]string
}

// GetService returns the service row for identity, or nil if none
// exists.
func (s *Store) GetService(ctx context.Context, identity string) (*Service, error) {
	var result *Service
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT identity, port, pid, claimed_at, last_seen, expires_at, health_path, endpoints
			 FROM services WHERE identity = ?`,
			&sqlitex.ExecOptions{
				Args: []any{identity},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					svc, err := scanService(stmt)
					if err != nil {
						return err
					}
					result = &svc
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: GetService(%s): %w", identity, err)
	}
	return result, nil
}

// GetServiceByPort returns the service row bound to port, or nil.
func (s *Store) GetServiceByPort(ctx context.Context, port int) (*Service, error) {
	var result *Service
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT identity, port, pid, claimed_at, last_seen, expires_at, health_path, endpoints
			 FROM services WHERE port = ?`,
			&sqlitex.ExecOptions{
				Args: []any{port},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					svc, err := scanService(stmt)
					if err != nil {
						return err
					}
					result = &svc
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: GetServiceByPort(%d): %w", port, err)
	}
	return result, nil
}

// ListServices returns every service row. Pattern filtering is a
// caller concern (identity.Matches over the full list).
func (s *Store) ListServices(ctx context.Context) ([]Service, error) {
	var results []Service
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT identity, port, pid, claimed_at, last_seen, expires_at, health_path, endpoints
			 FROM services ORDER BY identity`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					svc, err := scanService(stmt)
					if err != nil {
						return err
					}
					results = append(results, svc)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: ListServices: %w", err)
	}
	return results, nil
}

// InsertService inserts a new service row. Returns a *kernelerr.Error
// of Kind Conflict if the identity or port already exists, which the
// Ports component uses to decide whether to retry with a different
// port or surface the conflict.
func (s *Store) InsertService(ctx context.Context, svc Service) error {
	endpoints, err := json.Marshal(svc.Endpoints)
	if err != nil {
		return fmt.Errorf("store: InsertService: encoding endpoints: %w", err)
	}

	err = s.withTx(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO services (identity, port, pid, claimed_at, last_seen, expires_at, health_path, endpoints)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{svc.Identity, svc.Port, svc.PID, svc.ClaimedAt, svc.LastSeen, svc.ExpiresAt, svc.HealthPath, string(endpoints)},
			})
	})
	if isUniqueConstraintError(err) {
		return kernelerr.Wrap(kernelerr.Conflict, fmt.Sprintf("service identity %q or port %d already claimed", svc.Identity, svc.Port), err)
	}
	if err != nil {
		return fmt.Errorf("store: InsertService(%s): %w", svc.Identity, err)
	}
	return nil
}

// TouchService refreshes last_seen for an existing service row.
func (s *Store) TouchService(ctx context.Context, identity string, lastSeen int64) error {
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`UPDATE services SET last_seen = ? WHERE identity = ?`,
			&sqlitex.ExecOptions{Args: []any{lastSeen, identity}})
	})
	if err != nil {
		return fmt.Errorf("store: TouchService(%s): %w", identity, err)
	}
	return nil
}

// DeleteService deletes the service row for identity. Returns whether
// a row was deleted.
func (s *Store) DeleteService(ctx context.Context, identity string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `DELETE FROM services WHERE identity = ?`,
			&sqlitex.ExecOptions{Args: []any{identity}}); err != nil {
			return err
		}
		deleted = conn.Changes() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: DeleteService(%s): %w", identity, err)
	}
	return deleted, nil
}

// SetServiceEndpoint merges env→url into the service's endpoint map.
// Returns false if no service row exists for identity.
func (s *Store) SetServiceEndpoint(ctx context.Context, identity, env, url string) (bool, error) {
	var found bool
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		var currentJSON string
		var rowExists bool
		if err := sqlitex.Execute(conn, `SELECT endpoints FROM services WHERE identity = ?`,
			&sqlitex.ExecOptions{
				Args: []any{identity},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					currentJSON = stmt.ColumnText(0)
					rowExists = true
					return nil
				},
			}); err != nil {
			return err
		}
		if !rowExists {
			return nil
		}

		endpoints := map[string]string{}
		if currentJSON != "" {
			if err := json.Unmarshal([]byte(currentJSON), &endpoints); err != nil {
				return fmt.Errorf("decoding stored endpoints: %w", err)
			}
		}
		endpoints[env] = url

		encoded, err := json.Marshal(endpoints)
		if err != nil {
			return fmt.Errorf("encoding endpoints: %w", err)
		}

		if err := sqlitex.Execute(conn, `UPDATE services SET endpoints = ? WHERE identity = ?`,
			&sqlitex.ExecOptions{Args: []any{string(encoded), identity}}); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: SetServiceEndpoint(%s): %w", identity, err)
	}
	return found, nil
}

func scanService(stmt *sqlite.Stmt) (Service, error) {
	svc := Service{
		Identity:  stmt.ColumnText(0),
		Port:      int(stmt.ColumnInt64(1)),
		ClaimedAt: stmt.ColumnInt64(3),
		LastSeen:  stmt.ColumnInt64(4),
	}
	if !stmt.ColumnIsNull(2) {
		pid := stmt.ColumnInt64(2)
		svc.PID = &pid
	}
	if !stmt.ColumnIsNull(5) {
		expiresAt := stmt.ColumnInt64(5)
		svc.ExpiresAt = &expiresAt
	}
	if !stmt.ColumnIsNull(6) {
		healthPath := stmt.ColumnText(6)
		svc.HealthPath = &healthPath
	}

	endpoints := map[string]string{}
	if raw := stmt.ColumnText(7); raw != "" {
		if err := json.Unmarshal([]byte(raw), &endpoints); err != nil {
			return Service{}, fmt.Errorf("decoding endpoints: %w", err)
		}
	}
	svc.Endpoints = endpoints

	return svc, nil
}
