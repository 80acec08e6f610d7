// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Session is a row of the sessions table.
type Session struct {
	ID        string
	Purpose   *string
	CreatedBy *string
	CreatedAt int64
	UpdatedAt int64
	Status    string
	Identity  *string
}

// Note is a row of the notes table. Immutable once written.
type Note struct {
	ID        int64
	SessionID string
	Type      *string
	Content   string
	CreatedBy *string
	CreatedAt int64
}

// FileClaim is a row of the file_claims table.
type FileClaim struct {
	SessionID string
	Path      string
	ClaimedAt int64
}

// InsertSession inserts a new session row.
func (s *Store) InsertSession(ctx context.Context, sess Session) error {
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO sessions (id, purpose, created_by, created_at, updated_at, status, identity)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				sess.ID, sess.Purpose, sess.CreatedBy, sess.CreatedAt, sess.UpdatedAt, sess.Status, sess.Identity,
			}})
	})
	if err != nil {
		return fmt.Errorf("store: InsertSession(%s): %w", sess.ID, err)
	}
	return nil
}

// GetSession returns the row for id, or nil.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var result *Session
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, purpose, created_by, created_at, updated_at, status, identity FROM sessions WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{id},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					sess := scanSession(stmt)
					result = &sess
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: GetSession(%s): %w", id, err)
	}
	return result, nil
}

// ListSessions returns all sessions, optionally filtered by status.
func (s *Store) ListSessions(ctx context.Context, status *string) ([]Session, error) {
	var results []Session
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		query := `SELECT id, purpose, created_by, created_at, updated_at, status, identity FROM sessions`
		args := []any{}
		if status != nil {
			query += ` WHERE status = ?`
			args = append(args, *status)
		}
		query += ` ORDER BY created_at DESC`
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				results = append(results, scanSession(stmt))
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: ListSessions: %w", err)
	}
	return results, nil
}

// FindMostRecentActiveSession returns the most recently created active
// session whose created_by equals createdBy, or nil.
func (s *Store) FindMostRecentActiveSession(ctx context.Context, createdBy string) (*Session, error) {
	var result *Session
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, purpose, created_by, created_at, updated_at, status, identity
			 FROM sessions WHERE created_by = ? AND status = 'active'
			 ORDER BY created_at DESC LIMIT 1`,
			&sqlitex.ExecOptions{
				Args: []any{createdBy},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					sess := scanSession(stmt)
					result = &sess
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: FindMostRecentActiveSession(%s): %w", createdBy, err)
	}
	return result, nil
}

// ListActiveSessionsByCreatedBy returns every active session created
// by agent id createdBy. Used by the reaper when an agent dies.
func (s *Store) ListActiveSessionsByCreatedBy(ctx context.Context, createdBy string) ([]Session, error) {
	var results []Session
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, purpose, created_by, created_at, updated_at, status, identity
			 FROM sessions WHERE created_by = ? AND status = 'active' ORDER BY created_at`,
			&sqlitex.ExecOptions{
				Args: []any{createdBy},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					results = append(results, scanSession(stmt))
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: ListActiveSessionsByCreatedBy(%s): %w", createdBy, err)
	}
	return results, nil
}

// UpdateSessionStatus sets status and updated_at for id. Returns false
// if no row exists for id.
func (s *Store) UpdateSessionStatus(ctx context.Context, id, status string, updatedAt int64) (bool, error) {
	var found bool
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		if e := sqlitex.Execute(conn, `UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{status, updatedAt, id}}); e != nil {
			return e
		}
		found = conn.Changes() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: UpdateSessionStatus(%s): %w", id, err)
	}
	return found, nil
}

// DeleteSession deletes the session row for id, cascading to its
// notes and file claims via foreign key.
func (s *Store) DeleteSession(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		if e := sqlitex.Execute(conn, `DELETE FROM sessions WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{id}}); e != nil {
			return e
		}
		deleted = conn.Changes() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: DeleteSession(%s): %w", id, err)
	}
	return deleted, nil
}

// InsertNote appends a note and returns its assigned id.
func (s *Store) InsertNote(ctx context.Context, note Note) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		if e := sqlitex.Execute(conn,
			`INSERT INTO notes (session_id, type, content, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{note.SessionID, note.Type, note.Content, note.CreatedBy, note.CreatedAt}}); e != nil {
			return e
		}
		id = conn.LastInsertRowID()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: InsertNote(%s): %w", note.SessionID, err)
	}
	return id, nil
}

// ListNotesBySession returns every note for sessionID in id order.
func (s *Store) ListNotesBySession(ctx context.Context, sessionID string) ([]Note, error) {
	var results []Note
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, session_id, type, content, created_by, created_at FROM notes WHERE session_id = ? ORDER BY id`,
			&sqlitex.ExecOptions{
				Args: []any{sessionID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					results = append(results, scanNote(stmt))
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: ListNotesBySession(%s): %w", sessionID, err)
	}
	return results, nil
}

// ListRecentNotes returns the most recent notes across all sessions,
// newest first, optionally filtered by type, up to limit rows.
func (s *Store) ListRecentNotes(ctx context.Context, noteType *string, limit int) ([]Note, error) {
	var results []Note
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		query := `SELECT id, session_id, type, content, created_by, created_at FROM notes`
		args := []any{}
		if noteType != nil {
			query += ` WHERE type = ?`
			args = append(args, *noteType)
		}
		query += ` ORDER BY id DESC`
		if limit > 0 {
			query += ` LIMIT ?`
			args = append(args, limit)
		}
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				results = append(results, scanNote(stmt))
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: ListRecentNotes: %w", err)
	}
	return results, nil
}

// LastNotesBySession returns the last limit notes for sessionID,
// newest first — used by the salvage snapshot.
func (s *Store) LastNotesBySession(ctx context.Context, sessionID string, limit int) ([]Note, error) {
	var results []Note
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, session_id, type, content, created_by, created_at FROM notes
			 WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
			&sqlitex.ExecOptions{
				Args: []any{sessionID, limit},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					results = append(results, scanNote(stmt))
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: LastNotesBySession(%s): %w", sessionID, err)
	}
	return results, nil
}

// InsertFileClaim records a FileClaim, replacing any existing claim
// for the same (session, path) pair.
func (s *Store) InsertFileClaim(ctx context.Context, claim FileClaim) error {
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO file_claims (session_id, path, claimed_at) VALUES (?, ?, ?)
			 ON CONFLICT(session_id, path) DO UPDATE SET claimed_at = excluded.claimed_at`,
			&sqlitex.ExecOptions{Args: []any{claim.SessionID, claim.Path, claim.ClaimedAt}})
	})
	if err != nil {
		return fmt.Errorf("store: InsertFileClaim(%s, %s): %w", claim.SessionID, claim.Path, err)
	}
	return nil
}

// DeleteFileClaim removes a single file claim. Returns whether a row
// was deleted.
func (s *Store) DeleteFileClaim(ctx context.Context, sessionID, path string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		if e := sqlitex.Execute(conn, `DELETE FROM file_claims WHERE session_id = ? AND path = ?`,
			&sqlitex.ExecOptions{Args: []any{sessionID, path}}); e != nil {
			return e
		}
		deleted = conn.Changes() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: DeleteFileClaim(%s, %s): %w", sessionID, path, err)
	}
	return deleted, nil
}

// ListFileClaimsBySession returns every file claim for sessionID.
func (s *Store) ListFileClaimsBySession(ctx context.Context, sessionID string) ([]FileClaim, error) {
	var results []FileClaim
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT session_id, path, claimed_at FROM file_claims WHERE session_id = ? ORDER BY path`,
			&sqlitex.ExecOptions{
				Args: []any{sessionID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					results = append(results, scanFileClaim(stmt))
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: ListFileClaimsBySession(%s): %w", sessionID, err)
	}
	return results, nil
}

// FindActiveClaimForPath returns the file claim and owning session for
// path held by an active session other than excludeSessionID, or nil
// if there is no such conflict.
func (s *Store) FindActiveClaimForPath(ctx context.Context, path, excludeSessionID string) (*FileClaim, *Session, error) {
	var claim *FileClaim
	var session *Session
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT fc.session_id, fc.path, fc.claimed_at,
			        s.id, s.purpose, s.created_by, s.created_at, s.updated_at, s.status, s.identity
			 FROM file_claims fc
			 JOIN sessions s ON s.id = fc.session_id
			 WHERE fc.path = ? AND fc.session_id != ? AND s.status = 'active'
			 LIMIT 1`,
			&sqlitex.ExecOptions{
				Args: []any{path, excludeSessionID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					c := FileClaim{SessionID: stmt.ColumnText(0), Path: stmt.ColumnText(1), ClaimedAt: stmt.ColumnInt64(2)}
					claim = &c

					sess := Session{
						ID:        stmt.ColumnText(3),
						CreatedAt: stmt.ColumnInt64(6),
						UpdatedAt: stmt.ColumnInt64(7),
						Status:    stmt.ColumnText(8),
					}
					if !stmt.ColumnIsNull(4) {
						v := stmt.ColumnText(4)
						sess.Purpose = &v
					}
					if !stmt.ColumnIsNull(5) {
						v := stmt.ColumnText(5)
						sess.CreatedBy = &v
					}
					if !stmt.ColumnIsNull(9) {
						v := stmt.ColumnText(9)
						sess.Identity = &v
					}
					session = &sess
					return nil
				},
			})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("store: FindActiveClaimForPath(%s): %w", path, err)
	}
	return claim, session, nil
}

func scanSession(stmt *sqlite.Stmt) Session {
	sess := Session{
		ID:        stmt.ColumnText(0),
		CreatedAt: stmt.ColumnInt64(3),
		UpdatedAt: stmt.ColumnInt64(4),
		Status:    stmt.ColumnText(5),
	}
	if !stmt.ColumnIsNull(1) {
		v := stmt.ColumnText(1)
		sess.Purpose = &v
	}
	if !stmt.ColumnIsNull(2) {
		v := stmt.ColumnText(2)
		sess.CreatedBy = &v
	}
	if !stmt.ColumnIsNull(6) {
		v := stmt.ColumnText(6)
		sess.Identity = &v
	}
	return sess
}

func scanNote(stmt *sqlite.Stmt) Note {
	note := Note{
		ID:        stmt.ColumnInt64(0),
		SessionID: stmt.ColumnText(1),
		Content:   stmt.ColumnText(3),
		CreatedAt: stmt.ColumnInt64(5),
	}
	if !stmt.ColumnIsNull(2) {
		v := stmt.ColumnText(2)
		note.Type = &v
	}
	if !stmt.ColumnIsNull(4) {
		v := stmt.ColumnText(4)
		note.CreatedBy = &v
	}
	return note
}

func scanFileClaim(stmt *sqlite.Stmt) FileClaim {
	return FileClaim{
		SessionID: stmt.ColumnText(0),
		Path:      stmt.ColumnText(1),
		ClaimedAt: stmt.ColumnInt64(2),
	}
}
