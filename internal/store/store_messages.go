// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Message is a row of the messages table.
type Message struct {
	ID        int64
	Channel   string
	Payload   []byte
	Sender    *string
	CreatedAt int64
}

// ChannelSummary describes a channel's stored history.
type ChannelSummary struct {
	Channel        string
	MessageCount   int64
	LastMessageAt  int64
}

// InsertMessage appends a message and returns its assigned id. The id
// is monotonically increasing per the AUTOINCREMENT column.
func (s *Store) InsertMessage(ctx context.Context, channel string, payload []byte, sender *string, createdAt int64) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		if e := sqlitex.Execute(conn,
			`INSERT INTO messages (channel, payload, sender, created_at) VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{channel, payload, sender, createdAt}}); e != nil {
			return e
		}
		id = conn.LastInsertRowID()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: InsertMessage(%s): %w", channel, err)
	}
	return id, nil
}

// ListMessages returns stored messages for channel in id order, with
// id > since, up to limit rows (0 means unlimited).
func (s *Store) ListMessages(ctx context.Context, channel string, since int64, limit int) ([]Message, error) {
	var results []Message
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		query := `SELECT id, channel, payload, sender, created_at FROM messages WHERE channel = ? AND id > ? ORDER BY id`
		args := []any{channel, since}
		if limit > 0 {
			query += ` LIMIT ?`
			args = append(args, limit)
		}
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				results = append(results, scanMessage(stmt))
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: ListMessages(%s): %w", channel, err)
	}
	return results, nil
}

// Channels returns a summary of every channel with stored history.
func (s *Store) Channels(ctx context.Context) ([]ChannelSummary, error) {
	var results []ChannelSummary
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT channel, COUNT(*), MAX(created_at) FROM messages GROUP BY channel ORDER BY channel`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					results = append(results, ChannelSummary{
						Channel:       stmt.ColumnText(0),
						MessageCount:  stmt.ColumnInt64(1),
						LastMessageAt: stmt.ColumnInt64(2),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: Channels: %w", err)
	}
	return results, nil
}

// ClearChannel deletes all stored history for channel, returning the
// count removed. Live subscribers are unaffected — they are in-memory
// state the store does not know about.
func (s *Store) ClearChannel(ctx context.Context, channel string) (int, error) {
	var count int
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		if e := sqlitex.Execute(conn, `DELETE FROM messages WHERE channel = ?`,
			&sqlitex.ExecOptions{Args: []any{channel}}); e != nil {
			return e
		}
		count = conn.Changes()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: ClearChannel(%s): %w", channel, err)
	}
	return count, nil
}

// TruncateMessageHistory deletes messages older than maxAgeCutoff (a
// created_at threshold) or, per channel, beyond the most recent
// maxPerChannel rows. Either bound set to zero/negative disables that
// bound. Returns the count removed.
func (s *Store) TruncateMessageHistory(ctx context.Context, maxAgeCutoff int64, maxPerChannel int) (int, error) {
	var removed int
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		if maxAgeCutoff > 0 {
			if e := sqlitex.Execute(conn, `DELETE FROM messages WHERE created_at < ?`,
				&sqlitex.ExecOptions{Args: []any{maxAgeCutoff}}); e != nil {
				return e
			}
			removed += conn.Changes()
		}

		if maxPerChannel > 0 {
			if e := sqlitex.Execute(conn,
				`DELETE FROM messages
				 WHERE id IN (
					 SELECT id FROM (
						 SELECT id, ROW_NUMBER() OVER (PARTITION BY channel ORDER BY id DESC) AS rank
						 FROM messages
					 ) WHERE rank > ?
				 )`,
				&sqlitex.ExecOptions{Args: []any{maxPerChannel}}); e != nil {
				return e
			}
			removed += conn.Changes()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: TruncateMessageHistory: %w", err)
	}
	return removed, nil
}

func scanMessage(stmt *sqlite.Stmt) Message {
	msg := Message{
		ID:        stmt.ColumnInt64(0),
		Channel:   stmt.ColumnText(1),
		CreatedAt: stmt.ColumnInt64(4),
	}
	payload := make([]byte, stmt.ColumnLen(2))
	stmt.ColumnBytes(2, payload)
	msg.Payload = payload
	if !stmt.ColumnIsNull(3) {
		sender := stmt.ColumnText(3)
		msg.Sender = &sender
	}
	return msg
}
