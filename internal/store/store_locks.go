// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Lock is a row of the locks table.
type Lock struct {
	Name       string
	Owner      string
	AcquiredAt int64
	ExpiresAt  *int64
	PID        *int64
}

// unexpired reports whether the lock has not yet passed its expiry as
// of now. A nil ExpiresAt means the lock never expires.
func (l Lock) unexpired(now int64) bool {
	return l.ExpiresAt == nil || *l.ExpiresAt > now
}

// GetLock returns the row for name regardless of expiry, or nil.
func (s *Store) GetLock(ctx context.Context, name string) (*Lock, error) {
	var result *Lock
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT name, owner, acquired_at, expires_at, pid FROM locks WHERE name = ?`,
			&sqlitex.ExecOptions{
				Args: []any{name},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					lock := scanLock(stmt)
					result = &lock
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: GetLock(%s): %w", name, err)
	}
	return result, nil
}

// ListLocks returns unexpired locks as of now, optionally filtered by
// owner. Encountered expired rows are deleted as a side effect (the
// "swept lazily at list time" behavior).
func (s *Store) ListLocks(ctx context.Context, now int64, owner *string) ([]Lock, error) {
	var results []Lock
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `DELETE FROM locks WHERE expires_at IS NOT NULL AND expires_at <= ?`,
			&sqlitex.ExecOptions{Args: []any{now}}); err != nil {
			return err
		}

		query := `SELECT name, owner, acquired_at, expires_at, pid FROM locks`
		args := []any{}
		if owner != nil {
			query += ` WHERE owner = ?`
			args = append(args, *owner)
		}
		query += ` ORDER BY name`

		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				results = append(results, scanLock(stmt))
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: ListLocks: %w", err)
	}
	return results, nil
}

// AcquireLock attempts to insert lock iff no unexpired row exists for
// its name as of now. If an unexpired row exists, it is returned as
// held with acquired=false. An expired row in the way is deleted
// first.
func (s *Store) AcquireLock(ctx context.Context, now int64, lock Lock) (acquired bool, held *Lock, err error) {
	err = s.withTx(ctx, func(conn *sqlite.Conn) error {
		var current *Lock
		if e := sqlitex.Execute(conn, `SELECT name, owner, acquired_at, expires_at, pid FROM locks WHERE name = ?`,
			&sqlitex.ExecOptions{
				Args: []any{lock.Name},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					l := scanLock(stmt)
					current = &l
					return nil
				},
			}); e != nil {
			return e
		}

		if current != nil && current.unexpired(now) {
			held = current
			return nil
		}

		if current != nil {
			if e := sqlitex.Execute(conn, `DELETE FROM locks WHERE name = ?`,
				&sqlitex.ExecOptions{Args: []any{lock.Name}}); e != nil {
				return e
			}
		}

		if e := sqlitex.Execute(conn,
			`INSERT INTO locks (name, owner, acquired_at, expires_at, pid) VALUES (?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{lock.Name, lock.Owner, lock.AcquiredAt, lock.ExpiresAt, lock.PID}}); e != nil {
			return e
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, nil, fmt.Errorf("store: AcquireLock(%s): %w", lock.Name, err)
	}
	return acquired, held, nil
}

// ExtendLock updates expires_at for name as of now, iff the lock is
// currently held (unexpired), owner matches (or force is set). Returns
// the current lock row (post-update on success, pre-update on
// mismatch) and whether the extension was applied.
func (s *Store) ExtendLock(ctx context.Context, now int64, name string, owner *string, force bool, newExpiresAt *int64) (extended bool, current *Lock, err error) {
	err = s.withTx(ctx, func(conn *sqlite.Conn) error {
		if e := sqlitex.Execute(conn, `SELECT name, owner, acquired_at, expires_at, pid FROM locks WHERE name = ?`,
			&sqlitex.ExecOptions{
				Args: []any{name},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					l := scanLock(stmt)
					current = &l
					return nil
				},
			}); e != nil {
			return e
		}

		if current == nil || !current.unexpired(now) {
			current = nil
			return nil
		}

		if !force && owner != nil && current.Owner != *owner {
			return nil
		}

		if e := sqlitex.Execute(conn, `UPDATE locks SET expires_at = ? WHERE name = ?`,
			&sqlitex.ExecOptions{Args: []any{newExpiresAt, name}}); e != nil {
			return e
		}
		current.ExpiresAt = newExpiresAt
		extended = true
		return nil
	})
	if err != nil {
		return false, nil, fmt.Errorf("store: ExtendLock(%s): %w", name, err)
	}
	return extended, current, nil
}

// ReleaseLock deletes the row for name iff owner matches or force is
// set. Returns released=false (not an error) when the lock was not
// held or the owner did not match.
func (s *Store) ReleaseLock(ctx context.Context, now int64, name string, owner *string, force bool) (released bool, err error) {
	err = s.withTx(ctx, func(conn *sqlite.Conn) error {
		var current *Lock
		if e := sqlitex.Execute(conn, `SELECT name, owner, acquired_at, expires_at, pid FROM locks WHERE name = ?`,
			&sqlitex.ExecOptions{
				Args: []any{name},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					l := scanLock(stmt)
					current = &l
					return nil
				},
			}); e != nil {
			return e
		}

		if current == nil || !current.unexpired(now) {
			return nil
		}
		if !force && owner != nil && current.Owner != *owner {
			return nil
		}

		if e := sqlitex.Execute(conn, `DELETE FROM locks WHERE name = ?`,
			&sqlitex.ExecOptions{Args: []any{name}}); e != nil {
			return e
		}
		released = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: ReleaseLock(%s): %w", name, err)
	}
	return released, nil
}

// DeleteExpiredLocks deletes all lock rows whose expiry has passed as
// of now, returning the count removed. Used by the reaper sweep.
func (s *Store) DeleteExpiredLocks(ctx context.Context, now int64) (int, error) {
	var count int
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		if e := sqlitex.Execute(conn, `DELETE FROM locks WHERE expires_at IS NOT NULL AND expires_at <= ?`,
			&sqlitex.ExecOptions{Args: []any{now}}); e != nil {
			return e
		}
		count = conn.Changes()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: DeleteExpiredLocks: %w", err)
	}
	return count, nil
}

func scanLock(stmt *sqlite.Stmt) Lock {
	lock := Lock{
		Name:       stmt.ColumnText(0),
		Owner:      stmt.ColumnText(1),
		AcquiredAt: stmt.ColumnInt64(2),
	}
	if !stmt.ColumnIsNull(3) {
		expiresAt := stmt.ColumnInt64(3)
		lock.ExpiresAt = &expiresAt
	}
	if !stmt.ColumnIsNull(4) {
		pid := stmt.ColumnInt64(4)
		lock.PID = &pid
	}
	return lock
}
