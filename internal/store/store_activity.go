// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ActivityEntry is a row of the activity_entries table: the uniform
// audit log every mutating kernel operation writes one row to.
type ActivityEntry struct {
	ID        int64
	Type      string
	Action    string
	Target    *string
	Details   *string
	AgentID   *string
	CreatedAt int64
}

// ActivityFilter narrows ListActivity. Zero-value fields mean "no
// filter" on that dimension.
type ActivityFilter struct {
	Type    string
	AgentID string
	Since   int64
	Until   int64
	Limit   int
	Offset  int
}

// InsertActivity appends one audit row and returns its assigned id.
func (s *Store) InsertActivity(ctx context.Context, entry ActivityEntry) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		if e := sqlitex.Execute(conn,
			`INSERT INTO activity_entries (type, action, target, details, agent_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{entry.Type, entry.Action, entry.Target, entry.Details, entry.AgentID, entry.CreatedAt}}); e != nil {
			return e
		}
		id = conn.LastInsertRowID()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: InsertActivity: %w", err)
	}
	return id, nil
}

// ListActivity returns activity rows matching filter, newest first.
func (s *Store) ListActivity(ctx context.Context, filter ActivityFilter) ([]ActivityEntry, error) {
	var results []ActivityEntry
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		query := `SELECT id, type, action, target, details, agent_id, created_at FROM activity_entries`
		var conditions []string
		var args []any

		if filter.Type != "" {
			conditions = append(conditions, "type = ?")
			args = append(args, filter.Type)
		}
		if filter.AgentID != "" {
			conditions = append(conditions, "agent_id = ?")
			args = append(args, filter.AgentID)
		}
		if filter.Since > 0 {
			conditions = append(conditions, "created_at >= ?")
			args = append(args, filter.Since)
		}
		if filter.Until > 0 {
			conditions = append(conditions, "created_at <= ?")
			args = append(args, filter.Until)
		}

		for i, cond := range conditions {
			if i == 0 {
				query += " WHERE " + cond
			} else {
				query += " AND " + cond
			}
		}
		query += " ORDER BY id DESC"
		if filter.Limit > 0 {
			query += " LIMIT ?"
			args = append(args, filter.Limit)
			if filter.Offset > 0 {
				query += " OFFSET ?"
				args = append(args, filter.Offset)
			}
		}

		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				results = append(results, scanActivity(stmt))
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: ListActivity: %w", err)
	}
	return results, nil
}

// TruncateActivity deletes activity rows older than maxAgeCutoff (a
// created_at threshold, 0 disables) or, if the table exceeds maxRows
// (0 disables), the oldest rows beyond that count. Returns the count
// removed.
func (s *Store) TruncateActivity(ctx context.Context, maxAgeCutoff int64, maxRows int) (int, error) {
	var removed int
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		if maxAgeCutoff > 0 {
			if e := sqlitex.Execute(conn, `DELETE FROM activity_entries WHERE created_at < ?`,
				&sqlitex.ExecOptions{Args: []any{maxAgeCutoff}}); e != nil {
				return e
			}
			removed += conn.Changes()
		}

		if maxRows > 0 {
			if e := sqlitex.Execute(conn,
				`DELETE FROM activity_entries WHERE id IN (
					SELECT id FROM activity_entries ORDER BY id DESC LIMIT -1 OFFSET ?
				)`,
				&sqlitex.ExecOptions{Args: []any{maxRows}}); e != nil {
				return e
			}
			removed += conn.Changes()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: TruncateActivity: %w", err)
	}
	return removed, nil
}

func scanActivity(stmt *sqlite.Stmt) ActivityEntry {
	entry := ActivityEntry{
		ID:        stmt.ColumnInt64(0),
		Type:      stmt.ColumnText(1),
		Action:    stmt.ColumnText(2),
		CreatedAt: stmt.ColumnInt64(6),
	}
	if !stmt.ColumnIsNull(3) {
		v := stmt.ColumnText(3)
		entry.Target = &v
	}
	if !stmt.ColumnIsNull(4) {
		v := stmt.ColumnText(4)
		entry.Details = &v
	}
	if !stmt.ColumnIsNull(5) {
		v := stmt.ColumnText(5)
		entry.AgentID = &v
	}
	return entry
}
