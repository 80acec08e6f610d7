// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ResurrectionEntry is a row of the resurrection_entries table.
type ResurrectionEntry struct {
	ID                string
	DeadAgentID       string
	Identity          *string
	SessionsSnapshot  string
	NotesSnapshot     string
	CreatedAt         int64
	State             string
	ClaimedBy         *string
}

// InsertResurrectionEntry inserts a new pending resurrection entry.
func (s *Store) InsertResurrectionEntry(ctx context.Context, entry ResurrectionEntry) error {
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO resurrection_entries (id, dead_agent_id, identity, sessions_snapshot, notes_snapshot, created_at, state, claimed_by)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				entry.ID, entry.DeadAgentID, entry.Identity, entry.SessionsSnapshot, entry.NotesSnapshot,
				entry.CreatedAt, entry.State, entry.ClaimedBy,
			}})
	})
	if err != nil {
		return fmt.Errorf("store: InsertResurrectionEntry(%s): %w", entry.ID, err)
	}
	return nil
}

// GetResurrectionEntry returns the row for id, or nil.
func (s *Store) GetResurrectionEntry(ctx context.Context, id string) (*ResurrectionEntry, error) {
	var result *ResurrectionEntry
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, dead_agent_id, identity, sessions_snapshot, notes_snapshot, created_at, state, claimed_by
			 FROM resurrection_entries WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{id},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					e := scanResurrectionEntry(stmt)
					result = &e
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: GetResurrectionEntry(%s): %w", id, err)
	}
	return result, nil
}

// ListResurrectionEntries returns every entry, optionally filtered by
// state. Project/stack filtering is a caller concern (identity
// matching over the Identity field).
func (s *Store) ListResurrectionEntries(ctx context.Context, state *string) ([]ResurrectionEntry, error) {
	var results []ResurrectionEntry
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		query := `SELECT id, dead_agent_id, identity, sessions_snapshot, notes_snapshot, created_at, state, claimed_by FROM resurrection_entries`
		args := []any{}
		if state != nil {
			query += ` WHERE state = ?`
			args = append(args, *state)
		}
		query += ` ORDER BY created_at DESC`
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				results = append(results, scanResurrectionEntry(stmt))
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: ListResurrectionEntries: %w", err)
	}
	return results, nil
}

// UpdateResurrectionEntryState transitions entry id to newState,
// recording claimedBy if non-nil. Returns false if no row exists.
func (s *Store) UpdateResurrectionEntryState(ctx context.Context, id, newState string, claimedBy *string) (bool, error) {
	var found bool
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		query := `UPDATE resurrection_entries SET state = ?`
		args := []any{newState}
		if claimedBy != nil {
			query += `, claimed_by = ?`
			args = append(args, *claimedBy)
		}
		query += ` WHERE id = ?`
		args = append(args, id)

		if e := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); e != nil {
			return e
		}
		found = conn.Changes() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: UpdateResurrectionEntryState(%s): %w", id, err)
	}
	return found, nil
}

func scanResurrectionEntry(stmt *sqlite.Stmt) ResurrectionEntry {
	entry := ResurrectionEntry{
		ID:               stmt.ColumnText(0),
		DeadAgentID:      stmt.ColumnText(1),
		SessionsSnapshot: stmt.ColumnText(3),
		NotesSnapshot:    stmt.ColumnText(4),
		CreatedAt:        stmt.ColumnInt64(5),
		State:            stmt.ColumnText(6),
	}
	if !stmt.ColumnIsNull(2) {
		v := stmt.ColumnText(2)
		entry.Identity = &v
	}
	if !stmt.ColumnIsNull(7) {
		v := stmt.ColumnText(7)
		entry.ClaimedBy = &v
	}
	return entry
}
