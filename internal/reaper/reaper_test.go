// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reaper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/curiositech/port-daddy/internal/activity"
	"github.com/curiositech/port-daddy/internal/agents"
	"github.com/curiositech/port-daddy/internal/locks"
	"github.com/curiositech/port-daddy/internal/messaging"
	"github.com/curiositech/port-daddy/internal/ports"
	"github.com/curiositech/port-daddy/internal/procutil"
	"github.com/curiositech/port-daddy/internal/ratelimit"
	"github.com/curiositech/port-daddy/internal/salvage"
	"github.com/curiositech/port-daddy/internal/sessions"
	"github.com/curiositech/port-daddy/internal/store"
	"github.com/curiositech/port-daddy/lib/clock"
	"github.com/curiositech/port-daddy/lib/identity"
)

type harness struct {
	reaper    *Reaper
	agents    *agents.Agents
	sessions  *sessions.Sessions
	ports     *ports.Ports
	locks     *locks.Locks
	messaging *messaging.Messaging
	activity  *activity.Activity
	salvage   *salvage.Salvage
	clock     *clock.FakeClock
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portd.db")
	st, err := store.Open(store.Config{Path: path, PoolSize: 2})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clk := clock.Fake(time.Unix(1700000000, 0))
	scanner := procutil.NewListeningPortScanner(clk, 0)

	h := &harness{
		agents:    agents.New(st, clk, agents.Config{StaleAfter: 10 * time.Minute, DeadAfter: 20 * time.Minute}, nil),
		sessions:  sessions.New(st, clk, nil),
		ports:     ports.New(st, clk, scanner, ports.Config{RangeMin: 20000, RangeMax: 20010}, nil),
		locks:     locks.New(st, clk, nil),
		messaging: messaging.New(st, clk, messaging.Config{}, nil),
		activity:  activity.New(st, clk, activity.Config{}, nil),
		salvage:   salvage.New(st, clk, salvage.Config{}, nil),
		clock:     clk,
	}

	rl := ratelimit.New(ratelimit.Config{RequestsPerMinute: 60, Burst: 10, IdleEviction: time.Minute, Clock: clk})

	r, err := New(Deps{
		Ports:     h.ports,
		Locks:     h.locks,
		Agents:    h.agents,
		Messaging: h.messaging,
		Salvage:   h.salvage,
		Activity:  h.activity,
		RateLimit: rl,
	}, clk, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.reaper = r
	return h
}

func TestSweepCreatesResurrectionEntryOnAgentDeath(t *testing.T) {
	h := newHarness(t, Config{Interval: time.Minute})
	ctx := context.Background()

	if _, err := h.agents.Register(ctx, "agent-1", agents.RegisterRequest{Type: "worker"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	purpose := "work"
	createdBy := "agent-1"
	idStr := "myapp:api"
	if _, err := h.sessions.Start(ctx, sessions.StartRequest{Purpose: &purpose, CreatedBy: &createdBy, Identity: &idStr}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.clock.Advance(25 * time.Minute)
	h.reaper.Sweep(ctx)

	entries, err := h.salvage.List(ctx, nil, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 resurrection entry, got %d", len(entries))
	}
	if entries[0].DeadAgentID != "agent-1" {
		t.Fatalf("unexpected dead agent id: %s", entries[0].DeadAgentID)
	}

	activityEntries, err := h.activity.List(ctx, store.ActivityFilter{})
	if err != nil {
		t.Fatalf("List activity: %v", err)
	}
	foundDead := false
	for _, e := range activityEntries {
		if e.Type == "agent" && e.Action == "dead" {
			foundDead = true
		}
	}
	if !foundDead {
		t.Fatal("expected agent.dead activity entry")
	}

	// A second sweep with no further change must not create a second
	// entry for the same agent.
	h.clock.Advance(time.Minute)
	h.reaper.Sweep(ctx)
	entries, err = h.salvage.List(ctx, nil, "")
	if err != nil {
		t.Fatalf("List (second sweep): %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected still 1 resurrection entry after second sweep, got %d", len(entries))
	}
}

func TestSweepDetectsSecondDeathAfterRecovery(t *testing.T) {
	h := newHarness(t, Config{Interval: time.Minute})
	ctx := context.Background()

	if _, err := h.agents.Register(ctx, "agent-1", agents.RegisterRequest{Type: "worker"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	purpose := "first stint"
	createdBy := "agent-1"
	if _, err := h.sessions.Start(ctx, sessions.StartRequest{Purpose: &purpose, CreatedBy: &createdBy}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.clock.Advance(25 * time.Minute)
	h.reaper.Sweep(ctx)

	entries, err := h.salvage.List(ctx, nil, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 resurrection entry after first death, got %d", len(entries))
	}

	// The agent recovers (heartbeats again) and starts a new session.
	if err := h.agents.Heartbeat(ctx, "agent-1"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	h.reaper.Sweep(ctx)

	purpose2 := "second stint"
	if _, err := h.sessions.Start(ctx, sessions.StartRequest{Purpose: &purpose2, CreatedBy: &createdBy}); err != nil {
		t.Fatalf("Start (second): %v", err)
	}

	// The agent dies a second time.
	h.clock.Advance(25 * time.Minute)
	h.reaper.Sweep(ctx)

	entries, err = h.salvage.List(ctx, nil, "")
	if err != nil {
		t.Fatalf("List (after second death): %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected a second resurrection entry after the agent recovered and died again, got %d", len(entries))
	}
}

func TestSweepReleasesExpiredPortsAndLocks(t *testing.T) {
	h := newHarness(t, Config{Interval: time.Minute})
	ctx := context.Background()

	id, err := identity.Parse("myapp:api")
	if err != nil {
		t.Fatalf("identity.Parse: %v", err)
	}
	deadPID := int64(999999999)
	if _, err := h.ports.Claim(ctx, id, ports.ClaimRequest{PID: &deadPID}); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if _, err := h.locks.Acquire(ctx, "deploy", locks.AcquireRequest{Owner: "agent-1", TTL: time.Second}); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	h.clock.Advance(2 * time.Second)
	h.reaper.Sweep(ctx)

	svc, err := h.ports.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if svc != nil {
		t.Fatalf("expected dead-pid service to be reclaimed, got %+v", svc)
	}

	lock, err := h.locks.Check(ctx, "deploy")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if lock != nil {
		t.Fatalf("expected expired lock to be swept, got %+v", lock)
	}
}

func TestSweepTruncatesHistory(t *testing.T) {
	h := newHarness(t, Config{Interval: time.Minute})
	ctx := context.Background()

	h.activity.Record(ctx, "port", "claim", nil, nil, nil)

	// Sweep should not error even with nothing past the retention
	// window; this just exercises the truncation call path.
	h.reaper.Sweep(ctx)

	entries, err := h.activity.List(ctx, store.ActivityFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the fresh entry to survive truncation, got %d", len(entries))
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	h := newHarness(t, Config{Interval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.reaper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}
