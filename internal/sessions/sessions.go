// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessions implements work sessions: append-only notes and
// advisory file claims scoped to a session's lifetime.
package sessions

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/curiositech/port-daddy/internal/kernelerr"
	"github.com/curiositech/port-daddy/internal/store"
	"github.com/curiositech/port-daddy/lib/clock"
)

// Sessions manages session lifecycle, notes, and file claims.
type Sessions struct {
	store  *store.Store
	clock  clock.Clock
	logger *slog.Logger
}

// New constructs a Sessions component.
func New(st *store.Store, clk clock.Clock, logger *slog.Logger) *Sessions {
	return &Sessions{store: st, clock: clk, logger: logger}
}

// FileConflict describes another active session already holding a
// claimed path.
type FileConflict struct {
	Path           string
	HeldBySession  string
	HeldByIdentity *string
}

// StartRequest carries the fields accepted by Start.
type StartRequest struct {
	Purpose   *string
	CreatedBy *string
	Identity  *string
	Files     []string
	Force     bool
}

// StartResult is the outcome of Start.
type StartResult struct {
	SessionID string
	Conflicts []FileConflict
}

// Start creates a session row and, for each requested file, either
// claims it or reports a conflict with the active session already
// holding it. Conflicting paths are not claimed unless Force is set.
func (s *Sessions) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	now := s.clock.Now().UnixMilli()
	id := uuid.NewString()

	if err := s.store.InsertSession(ctx, store.Session{
		ID:        id,
		Purpose:   req.Purpose,
		CreatedBy: req.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    "active",
		Identity:  req.Identity,
	}); err != nil {
		return nil, err
	}

	var conflicts []FileConflict
	for _, path := range req.Files {
		conflict, err := s.claimFile(ctx, id, path, now, req.Force)
		if err != nil {
			return nil, err
		}
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
		}
	}

	return &StartResult{SessionID: id, Conflicts: conflicts}, nil
}

// claimFile claims path for sessionID unless an active session other
// than sessionID already holds it, in which case it reports the
// conflict and (unless force) skips the claim.
func (s *Sessions) claimFile(ctx context.Context, sessionID, path string, now int64, force bool) (*FileConflict, error) {
	claim, holder, err := s.store.FindActiveClaimForPath(ctx, path, sessionID)
	if err != nil {
		return nil, err
	}

	var conflict *FileConflict
	if claim != nil {
		conflict = &FileConflict{Path: path, HeldBySession: holder.ID, HeldByIdentity: holder.Identity}
		if !force {
			return conflict, nil
		}
	}

	if err := s.store.InsertFileClaim(ctx, store.FileClaim{SessionID: sessionID, Path: path, ClaimedAt: now}); err != nil {
		return nil, err
	}
	return conflict, nil
}

// AddFiles claims additional paths on an active session.
func (s *Sessions) AddFiles(ctx context.Context, sessionID string, paths []string, force bool) ([]FileConflict, error) {
	sess, err := s.requireActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	_ = sess

	now := s.clock.Now().UnixMilli()
	var conflicts []FileConflict
	for _, path := range paths {
		conflict, err := s.claimFile(ctx, sessionID, path, now, force)
		if err != nil {
			return nil, err
		}
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
		}
	}
	return conflicts, nil
}

// RemoveFiles releases claims on the given paths. The session must be
// active: terminal sessions are read-only.
func (s *Sessions) RemoveFiles(ctx context.Context, sessionID string, paths []string) (int, error) {
	if _, err := s.requireActive(ctx, sessionID); err != nil {
		return 0, err
	}

	count := 0
	for _, path := range paths {
		deleted, err := s.store.DeleteFileClaim(ctx, sessionID, path)
		if err != nil {
			return count, err
		}
		if deleted {
			count++
		}
	}
	return count, nil
}

// AddNoteRequest carries the fields accepted by AddNote.
type AddNoteRequest struct {
	SessionID *string
	Content   string
	Type      *string
	CreatedBy *string
}

// AddNote appends a note. If SessionID is absent, the most recent
// active session for CreatedBy is used, or a new implicit "quick note"
// session is created if none exists.
func (s *Sessions) AddNote(ctx context.Context, req AddNoteRequest) (sessionID string, noteID int64, err error) {
	if req.Content == "" {
		return "", 0, kernelerr.New(kernelerr.Validation, "note content is required")
	}

	now := s.clock.Now().UnixMilli()
	sessionID = ""
	if req.SessionID != nil {
		sessionID = *req.SessionID
	} else if req.CreatedBy != nil {
		existing, err := s.store.FindMostRecentActiveSession(ctx, *req.CreatedBy)
		if err != nil {
			return "", 0, err
		}
		if existing != nil {
			sessionID = existing.ID
		}
	}

	if sessionID == "" {
		purpose := "quick note"
		id := uuid.NewString()
		if err := s.store.InsertSession(ctx, store.Session{
			ID: id, Purpose: &purpose, CreatedBy: req.CreatedBy,
			CreatedAt: now, UpdatedAt: now, Status: "active",
		}); err != nil {
			return "", 0, err
		}
		sessionID = id
	}

	id, err := s.store.InsertNote(ctx, store.Note{
		SessionID: sessionID, Type: req.Type, Content: req.Content, CreatedBy: req.CreatedBy, CreatedAt: now,
	})
	if err != nil {
		return "", 0, err
	}
	return sessionID, id, nil
}

// Notes returns every note for sessionID, in chronological order.
func (s *Sessions) Notes(ctx context.Context, sessionID string) ([]store.Note, error) {
	return s.store.ListNotesBySession(ctx, sessionID)
}

// RecentNotes returns the most recent notes across all sessions, newest
// first, optionally filtered by type, up to limit rows.
func (s *Sessions) RecentNotes(ctx context.Context, noteType *string, limit int) ([]store.Note, error) {
	return s.store.ListRecentNotes(ctx, noteType, limit)
}

// FileClaims returns the active file claims for sessionID.
func (s *Sessions) FileClaims(ctx context.Context, sessionID string) ([]store.FileClaim, error) {
	return s.store.ListFileClaimsBySession(ctx, sessionID)
}

// End sets status to either "completed" or "abandoned". A terminal
// session never returns to active. Idempotent on terminal status: ending
// an already-"completed" session with "completed" again is a no-op
// success, not a conflict. Switching between the two different terminal
// statuses is still a conflict.
func (s *Sessions) End(ctx context.Context, sessionID string, status string) error {
	if status != "completed" && status != "abandoned" {
		return kernelerr.New(kernelerr.Validation, "status must be completed or abandoned").WithDetail("status", status)
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return kernelerr.New(kernelerr.NotFound, "unknown session").WithDetail("session_id", sessionID)
	}
	if sess.Status != "active" {
		if sess.Status == status {
			return nil
		}
		return kernelerr.New(kernelerr.Conflict, "session is not active").WithDetail("session_id", sessionID).WithDetail("status", sess.Status)
	}

	now := s.clock.Now().UnixMilli()
	found, err := s.store.UpdateSessionStatus(ctx, sessionID, status, now)
	if err != nil {
		return err
	}
	if !found {
		return kernelerr.New(kernelerr.NotFound, "unknown session").WithDetail("session_id", sessionID)
	}
	return nil
}

// Delete removes a session row, cascading to its notes and file
// claims.
func (s *Sessions) Delete(ctx context.Context, sessionID string) (bool, error) {
	return s.store.DeleteSession(ctx, sessionID)
}

// Get returns a session by id, or nil.
func (s *Sessions) Get(ctx context.Context, sessionID string) (*store.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// List returns sessions, optionally filtered by status.
func (s *Sessions) List(ctx context.Context, status *string) ([]store.Session, error) {
	return s.store.ListSessions(ctx, status)
}

func (s *Sessions) requireActive(ctx context.Context, sessionID string) (*store.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, kernelerr.New(kernelerr.NotFound, "unknown session").WithDetail("session_id", sessionID)
	}
	if sess.Status != "active" {
		return nil, kernelerr.New(kernelerr.Conflict, "session is not active").WithDetail("session_id", sessionID).WithDetail("status", sess.Status)
	}
	return sess, nil
}
