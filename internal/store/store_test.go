// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/curiositech/port-daddy/internal/kernelerr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portd.db")
	st, err := Open(Config{Path: path, PoolSize: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestServiceClaimAndConflict(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	svc := Service{Identity: "myapp:api", Port: 20001, ClaimedAt: 1, LastSeen: 1, Endpoints: map[string]string{}}
	if err := st.InsertService(ctx, svc); err != nil {
		t.Fatalf("InsertService: %v", err)
	}

	err := st.InsertService(ctx, Service{Identity: "myapp:api", Port: 20002, ClaimedAt: 2, LastSeen: 2, Endpoints: map[string]string{}})
	if kernelerr.KindOf(err) != kernelerr.Conflict {
		t.Fatalf("expected Conflict inserting duplicate identity, got %v", err)
	}

	err = st.InsertService(ctx, Service{Identity: "other:api", Port: 20001, ClaimedAt: 2, LastSeen: 2, Endpoints: map[string]string{}})
	if kernelerr.KindOf(err) != kernelerr.Conflict {
		t.Fatalf("expected Conflict inserting duplicate port, got %v", err)
	}

	got, err := st.GetService(ctx, "myapp:api")
	if err != nil {
		t.Fatalf("GetService: %v", err)
	}
	if got == nil || got.Port != 20001 {
		t.Fatalf("GetService returned %+v", got)
	}
}

func TestLockAcquireExtendRelease(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	expires := int64(1000)
	acquired, held, err := st.AcquireLock(ctx, 0, Lock{Name: "db-mig", Owner: "A", AcquiredAt: 0, ExpiresAt: &expires})
	if err != nil || !acquired || held != nil {
		t.Fatalf("AcquireLock: acquired=%v held=%+v err=%v", acquired, held, err)
	}

	owner := "B"
	acquired2, held2, err := st.AcquireLock(ctx, 0, Lock{Name: "db-mig", Owner: owner, AcquiredAt: 0, ExpiresAt: &expires})
	if err != nil || acquired2 || held2 == nil || held2.Owner != "A" {
		t.Fatalf("expected conflicting acquire to report holder A, got acquired=%v held=%+v err=%v", acquired2, held2, err)
	}

	ownerA := "A"
	released, err := st.ReleaseLock(ctx, 0, "db-mig", &ownerA, false)
	if err != nil || !released {
		t.Fatalf("ReleaseLock: released=%v err=%v", released, err)
	}

	acquired3, _, err := st.AcquireLock(ctx, 0, Lock{Name: "db-mig", Owner: "B", AcquiredAt: 0, ExpiresAt: &expires})
	if err != nil || !acquired3 {
		t.Fatalf("expected B to acquire after release, got acquired=%v err=%v", acquired3, err)
	}
}

func TestSessionNoteFileClaimCascade(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.InsertSession(ctx, Session{ID: "s1", Status: "active", CreatedAt: 1, UpdatedAt: 1}); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}
	if _, err := st.InsertNote(ctx, Note{SessionID: "s1", Content: "hello", CreatedAt: 1}); err != nil {
		t.Fatalf("InsertNote: %v", err)
	}
	if err := st.InsertFileClaim(ctx, FileClaim{SessionID: "s1", Path: "a.go", ClaimedAt: 1}); err != nil {
		t.Fatalf("InsertFileClaim: %v", err)
	}

	deleted, err := st.DeleteSession(ctx, "s1")
	if err != nil || !deleted {
		t.Fatalf("DeleteSession: deleted=%v err=%v", deleted, err)
	}

	notes, err := st.ListNotesBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("ListNotesBySession: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("expected notes cascaded away, got %d", len(notes))
	}

	claims, err := st.ListFileClaimsBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("ListFileClaimsBySession: %v", err)
	}
	if len(claims) != 0 {
		t.Fatalf("expected file claims cascaded away, got %d", len(claims))
	}
}

func TestMessageHistoryTruncation(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := st.InsertMessage(ctx, "builds", []byte("{}"), nil, int64(i)); err != nil {
			t.Fatalf("InsertMessage: %v", err)
		}
	}

	removed, err := st.TruncateMessageHistory(ctx, 0, 2)
	if err != nil {
		t.Fatalf("TruncateMessageHistory: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}

	remaining, err := st.ListMessages(ctx, "builds", 0, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 remaining messages, got %d", len(remaining))
	}
}
