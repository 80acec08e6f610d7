// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ChangelogEntry is a row of the changelog_entries table. Immutable
// once written.
type ChangelogEntry struct {
	ID          string
	Identity    string
	Type        string
	Summary     string
	Description *string
	SessionID   *string
	AgentID     *string
	CreatedAt   int64
}

// InsertChangelogEntry appends a new changelog entry.
func (s *Store) InsertChangelogEntry(ctx context.Context, entry ChangelogEntry) error {
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO changelog_entries (id, identity, type, summary, description, session_id, agent_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				entry.ID, entry.Identity, entry.Type, entry.Summary, entry.Description,
				entry.SessionID, entry.AgentID, entry.CreatedAt,
			}})
	})
	if err != nil {
		return fmt.Errorf("store: InsertChangelogEntry(%s): %w", entry.ID, err)
	}
	return nil
}

// ListChangelog returns every changelog entry, newest first. Ancestor
// rollup (an entry for "a:b:c" visible to queries for "a:b" and "a")
// is a caller concern, applied with identity.IsAncestorOf over this
// full list.
func (s *Store) ListChangelog(ctx context.Context) ([]ChangelogEntry, error) {
	var results []ChangelogEntry
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, identity, type, summary, description, session_id, agent_id, created_at
			 FROM changelog_entries ORDER BY created_at DESC`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					results = append(results, scanChangelogEntry(stmt))
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: ListChangelog: %w", err)
	}
	return results, nil
}

func scanChangelogEntry(stmt *sqlite.Stmt) ChangelogEntry {
	entry := ChangelogEntry{
		ID:        stmt.ColumnText(0),
		Identity:  stmt.ColumnText(1),
		Type:      stmt.ColumnText(2),
		Summary:   stmt.ColumnText(3),
		CreatedAt: stmt.ColumnInt64(7),
	}
	if !stmt.ColumnIsNull(4) {
		v := stmt.ColumnText(4)
		entry.Description = &v
	}
	if !stmt.ColumnIsNull(5) {
		v := stmt.ColumnText(5)
		entry.SessionID = &v
	}
	if !stmt.ColumnIsNull(6) {
		v := stmt.ColumnText(6)
		entry.AgentID = &v
	}
	return entry
}
