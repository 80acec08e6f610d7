// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package salvage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/curiositech/port-daddy/internal/kernelerr"
	"github.com/curiositech/port-daddy/internal/store"
	"github.com/curiositech/port-daddy/lib/clock"
)

func newTestSalvage(t *testing.T) (*Salvage, *store.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portd.db")
	st, err := store.Open(store.Config{Path: path, PoolSize: 2})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clk := clock.Fake(time.Unix(1700000000, 0))
	return New(st, clk, Config{NotesPerSessionSnapshot: 2}, nil), st
}

func TestCreateEntrySkipsAgentWithNoActiveSessions(t *testing.T) {
	s, _ := newTestSalvage(t)
	ctx := context.Background()

	entry, err := s.CreateEntry(ctx, "agent-1", nil)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nil entry for agent with no active sessions, got %+v", entry)
	}
}

func TestCreateEntrySnapshotsActiveSessions(t *testing.T) {
	s, st := newTestSalvage(t)
	ctx := context.Background()

	createdBy := "agent-1"
	if err := st.InsertSession(ctx, store.Session{ID: "s1", CreatedBy: &createdBy, Status: "active", CreatedAt: 1, UpdatedAt: 1}); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := st.InsertNote(ctx, store.Note{SessionID: "s1", Content: "note", CreatedAt: int64(i)}); err != nil {
			t.Fatalf("InsertNote: %v", err)
		}
	}

	identity := "myapp:api"
	entry, err := s.CreateEntry(ctx, "agent-1", &identity)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if entry == nil || entry.State != "pending" {
		t.Fatalf("expected a pending entry, got %+v", entry)
	}

	count, err := s.CountByProject(ctx, "myapp")
	if err != nil {
		t.Fatalf("CountByProject: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 pending entry for project myapp, got %d", count)
	}
}

func TestClaimTransition(t *testing.T) {
	s, st := newTestSalvage(t)
	ctx := context.Background()

	createdBy := "agent-1"
	if err := st.InsertSession(ctx, store.Session{ID: "s1", CreatedBy: &createdBy, Status: "active", CreatedAt: 1, UpdatedAt: 1}); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}
	entry, err := s.CreateEntry(ctx, "agent-1", nil)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	if err := s.Claim(ctx, entry.ID, "agent-2"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	err = s.Claim(ctx, entry.ID, "agent-3")
	if kernelerr.KindOf(err) != kernelerr.Conflict {
		t.Fatalf("expected Conflict claiming an already-claimed entry, got %v", err)
	}
}

func TestCompleteRequiresClaimedState(t *testing.T) {
	s, st := newTestSalvage(t)
	ctx := context.Background()

	createdBy := "agent-1"
	if err := st.InsertSession(ctx, store.Session{ID: "s1", CreatedBy: &createdBy, Status: "active", CreatedAt: 1, UpdatedAt: 1}); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}
	entry, err := s.CreateEntry(ctx, "agent-1", nil)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	if err := s.Complete(ctx, entry.ID); kernelerr.KindOf(err) != kernelerr.Conflict {
		t.Fatalf("expected Conflict completing a still-pending entry, got %v", err)
	}

	if err := s.Claim(ctx, entry.ID, "agent-2"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := s.Complete(ctx, entry.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := s.Dismiss(ctx, entry.ID); kernelerr.KindOf(err) != kernelerr.Conflict {
		t.Fatalf("expected Conflict dismissing an already-done entry, got %v", err)
	}
}

func TestDismissRequiresClaimedState(t *testing.T) {
	s, st := newTestSalvage(t)
	ctx := context.Background()

	createdBy := "agent-1"
	if err := st.InsertSession(ctx, store.Session{ID: "s1", CreatedBy: &createdBy, Status: "active", CreatedAt: 1, UpdatedAt: 1}); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}
	entry, err := s.CreateEntry(ctx, "agent-1", nil)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	if err := s.Dismiss(ctx, entry.ID); kernelerr.KindOf(err) != kernelerr.Conflict {
		t.Fatalf("expected Conflict dismissing a still-pending entry, got %v", err)
	}

	if err := s.Claim(ctx, entry.ID, "agent-2"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := s.Dismiss(ctx, entry.ID); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
}

func TestAbandonRequiresClaimedState(t *testing.T) {
	s, st := newTestSalvage(t)
	ctx := context.Background()

	createdBy := "agent-1"
	if err := st.InsertSession(ctx, store.Session{ID: "s1", CreatedBy: &createdBy, Status: "active", CreatedAt: 1, UpdatedAt: 1}); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}
	entry, err := s.CreateEntry(ctx, "agent-1", nil)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	if err := s.Abandon(ctx, entry.ID); kernelerr.KindOf(err) != kernelerr.Conflict {
		t.Fatalf("expected Conflict abandoning a still-pending entry, got %v", err)
	}

	if err := s.Claim(ctx, entry.ID, "agent-2"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := s.Abandon(ctx, entry.ID); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
}
