// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package salvage implements the resurrection queue: snapshots of a
// dead agent's active sessions and notes, offered for handoff to a
// live agent.
package salvage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/curiositech/port-daddy/internal/kernelerr"
	"github.com/curiositech/port-daddy/internal/store"
	"github.com/curiositech/port-daddy/lib/clock"
)

// Config configures the salvage snapshot bound.
type Config struct {
	// NotesPerSessionSnapshot bounds how many of each session's most
	// recent notes are captured in a resurrection snapshot. Defaults
	// to 20.
	NotesPerSessionSnapshot int
}

// Salvage manages the resurrection queue.
type Salvage struct {
	store  *store.Store
	clock  clock.Clock
	logger *slog.Logger
	cfg    Config
}

// New constructs a Salvage component.
func New(st *store.Store, clk clock.Clock, cfg Config, logger *slog.Logger) *Salvage {
	if cfg.NotesPerSessionSnapshot <= 0 {
		cfg.NotesPerSessionSnapshot = 20
	}
	return &Salvage{store: st, clock: clk, logger: logger, cfg: cfg}
}

type sessionSnapshot struct {
	SessionID string   `json:"session_id"`
	Purpose   *string  `json:"purpose,omitempty"`
}

type noteSnapshot struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	Type      *string `json:"type,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// CreateEntry builds a pending ResurrectionEntry for a dead agent,
// snapshotting its active sessions and up to the configured number of
// most-recent notes per session. Returns nil if the agent owns no
// active sessions — the reaper should not create an entry in that
// case.
func (s *Salvage) CreateEntry(ctx context.Context, deadAgentID string, identity *string) (*store.ResurrectionEntry, error) {
	activeSessions, err := s.store.ListActiveSessionsByCreatedBy(ctx, deadAgentID)
	if err != nil {
		return nil, err
	}
	if len(activeSessions) == 0 {
		return nil, nil
	}

	sessionSnaps := make([]sessionSnapshot, 0, len(activeSessions))
	var noteSnaps []noteSnapshot
	for _, sess := range activeSessions {
		sessionSnaps = append(sessionSnaps, sessionSnapshot{SessionID: sess.ID, Purpose: sess.Purpose})

		notes, err := s.store.LastNotesBySession(ctx, sess.ID, s.cfg.NotesPerSessionSnapshot)
		if err != nil {
			return nil, err
		}
		for _, note := range notes {
			noteSnaps = append(noteSnaps, noteSnapshot{
				SessionID: note.SessionID, Content: note.Content, Type: note.Type, CreatedAt: note.CreatedAt,
			})
		}
	}

	sessionsJSON, err := json.Marshal(sessionSnaps)
	if err != nil {
		return nil, fmt.Errorf("salvage: encoding sessions snapshot: %w", err)
	}
	notesJSON, err := json.Marshal(noteSnaps)
	if err != nil {
		return nil, fmt.Errorf("salvage: encoding notes snapshot: %w", err)
	}

	entry := store.ResurrectionEntry{
		ID:               uuid.NewString(),
		DeadAgentID:      deadAgentID,
		Identity:         identity,
		SessionsSnapshot: string(sessionsJSON),
		NotesSnapshot:    string(notesJSON),
		CreatedAt:        s.clock.Now().UnixMilli(),
		State:            "pending",
	}
	if err := s.store.InsertResurrectionEntry(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns resurrection entries, optionally filtered by state and
// a project prefix matched against the entry's identity.
func (s *Salvage) List(ctx context.Context, state *string, projectPrefix string) ([]store.ResurrectionEntry, error) {
	entries, err := s.store.ListResurrectionEntries(ctx, state)
	if err != nil {
		return nil, err
	}
	if projectPrefix == "" {
		return entries, nil
	}

	var filtered []store.ResurrectionEntry
	for _, entry := range entries {
		if entry.Identity != nil && matchesProject(*entry.Identity, projectPrefix) {
			filtered = append(filtered, entry)
		}
	}
	return filtered, nil
}

func matchesProject(identity, projectPrefix string) bool {
	project := identity
	if idx := strings.IndexByte(identity, ':'); idx >= 0 {
		project = identity[:idx]
	}
	return project == projectPrefix
}

// Claim transitions a pending entry to claimed, recording claimedBy.
func (s *Salvage) Claim(ctx context.Context, id, claimedBy string) error {
	entry, err := s.store.GetResurrectionEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return kernelerr.New(kernelerr.NotFound, "unknown resurrection entry").WithDetail("id", id)
	}
	if entry.State != "pending" {
		return kernelerr.New(kernelerr.Conflict, "resurrection entry is not pending").WithDetail("id", id).WithDetail("state", entry.State)
	}

	found, err := s.store.UpdateResurrectionEntryState(ctx, id, "claimed", &claimedBy)
	if err != nil {
		return err
	}
	if !found {
		return kernelerr.New(kernelerr.NotFound, "unknown resurrection entry").WithDetail("id", id)
	}
	return nil
}

// Dismiss transitions a claimed entry to dismissed.
func (s *Salvage) Dismiss(ctx context.Context, id string) error {
	return s.transition(ctx, id, "claimed", "dismissed")
}

// Complete transitions a claimed entry to done.
func (s *Salvage) Complete(ctx context.Context, id string) error {
	return s.transition(ctx, id, "claimed", "done")
}

// Abandon transitions a claimed entry to abandoned.
func (s *Salvage) Abandon(ctx context.Context, id string) error {
	return s.transition(ctx, id, "claimed", "abandoned")
}

// transition moves an entry to newState, requiring its current state
// to be requiredState first, matching Claim's own pending-only guard.
func (s *Salvage) transition(ctx context.Context, id, requiredState, newState string) error {
	entry, err := s.store.GetResurrectionEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return kernelerr.New(kernelerr.NotFound, "unknown resurrection entry").WithDetail("id", id)
	}
	if entry.State != requiredState {
		return kernelerr.New(kernelerr.Conflict, "resurrection entry is not "+requiredState).WithDetail("id", id).WithDetail("state", entry.State)
	}

	found, err := s.store.UpdateResurrectionEntryState(ctx, id, newState, nil)
	if err != nil {
		return err
	}
	if !found {
		return kernelerr.New(kernelerr.NotFound, "unknown resurrection entry").WithDetail("id", id)
	}
	return nil
}

// CountByProject returns the number of pending entries whose identity
// project matches projectPrefix.
func (s *Salvage) CountByProject(ctx context.Context, projectPrefix string) (int, error) {
	pending := "pending"
	entries, err := s.List(ctx, &pending, projectPrefix)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
