// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Agent is a row of the agents table. State (active/stale/dead) is
// derived by the agents component, not stored.
type Agent struct {
	ID              string
	Type            string
	Purpose         *string
	IdentityProject *string
	IdentityStack   *string
	IdentityContext *string
	WorktreeID      *string
	RegisteredAt    int64
	LastHeartbeat   int64
}

// UpsertAgent inserts a new agent row or, if id already exists,
// refreshes every field except RegisteredAt (first-registration time
// is preserved). Returns isNew=true when this was the first
// registration.
func (s *Store) UpsertAgent(ctx context.Context, agent Agent) (isNew bool, err error) {
	err = s.withTx(ctx, func(conn *sqlite.Conn) error {
		var existed bool
		if e := sqlitex.Execute(conn, `SELECT 1 FROM agents WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args:       []any{agent.ID},
				ResultFunc: func(stmt *sqlite.Stmt) error { existed = true; return nil },
			}); e != nil {
			return e
		}

		if existed {
			if e := sqlitex.Execute(conn,
				`UPDATE agents SET type = ?, purpose = ?, identity_project = ?, identity_stack = ?,
				 identity_context = ?, worktree_id = ?, last_heartbeat = ? WHERE id = ?`,
				&sqlitex.ExecOptions{Args: []any{
					agent.Type, agent.Purpose, agent.IdentityProject, agent.IdentityStack,
					agent.IdentityContext, agent.WorktreeID, agent.LastHeartbeat, agent.ID,
				}}); e != nil {
				return e
			}
			return nil
		}

		isNew = true
		return sqlitex.Execute(conn,
			`INSERT INTO agents (id, type, purpose, identity_project, identity_stack, identity_context,
			 worktree_id, registered_at, last_heartbeat) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				agent.ID, agent.Type, agent.Purpose, agent.IdentityProject, agent.IdentityStack,
				agent.IdentityContext, agent.WorktreeID, agent.RegisteredAt, agent.LastHeartbeat,
			}})
	})
	if err != nil {
		return false, fmt.Errorf("store: UpsertAgent(%s): %w", agent.ID, err)
	}
	return isNew, nil
}

// TouchAgentHeartbeat refreshes last_heartbeat for id. Returns false
// if the agent does not exist.
func (s *Store) TouchAgentHeartbeat(ctx context.Context, id string, now int64) (bool, error) {
	var found bool
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		if e := sqlitex.Execute(conn, `UPDATE agents SET last_heartbeat = ? WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{now, id}}); e != nil {
			return e
		}
		found = conn.Changes() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: TouchAgentHeartbeat(%s): %w", id, err)
	}
	return found, nil
}

// DeleteAgent removes the agent row for id. Sessions it created are
// not cascaded.
func (s *Store) DeleteAgent(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		if e := sqlitex.Execute(conn, `DELETE FROM agents WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{id}}); e != nil {
			return e
		}
		deleted = conn.Changes() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: DeleteAgent(%s): %w", id, err)
	}
	return deleted, nil
}

// GetAgent returns the row for id, or nil.
func (s *Store) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var result *Agent
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, type, purpose, identity_project, identity_stack, identity_context,
			 worktree_id, registered_at, last_heartbeat FROM agents WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{id},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					agent := scanAgent(stmt)
					result = &agent
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: GetAgent(%s): %w", id, err)
	}
	return result, nil
}

// ListAgents returns every agent row. Project-prefix and state
// filtering are caller concerns (state is a derived, not stored,
// property).
func (s *Store) ListAgents(ctx context.Context) ([]Agent, error) {
	var results []Agent
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, type, purpose, identity_project, identity_stack, identity_context,
			 worktree_id, registered_at, last_heartbeat FROM agents ORDER BY id`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					results = append(results, scanAgent(stmt))
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: ListAgents: %w", err)
	}
	return results, nil
}

func scanAgent(stmt *sqlite.Stmt) Agent {
	agent := Agent{
		ID:            stmt.ColumnText(0),
		Type:          stmt.ColumnText(1),
		RegisteredAt:  stmt.ColumnInt64(7),
		LastHeartbeat: stmt.ColumnInt64(8),
	}
	if !stmt.ColumnIsNull(2) {
		v := stmt.ColumnText(2)
		agent.Purpose = &v
	}
	if !stmt.ColumnIsNull(3) {
		v := stmt.ColumnText(3)
		agent.IdentityProject = &v
	}
	if !stmt.ColumnIsNull(4) {
		v := stmt.ColumnText(4)
		agent.IdentityStack = &v
	}
	if !stmt.ColumnIsNull(5) {
		v := stmt.ColumnText(5)
		agent.IdentityContext = &v
	}
	if !stmt.ColumnIsNull(6) {
		v := stmt.ColumnText(6)
		agent.WorktreeID = &v
	}
	return agent
}
