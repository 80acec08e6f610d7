// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package activity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/curiositech/port-daddy/internal/store"
	"github.com/curiositech/port-daddy/lib/clock"
)

func newTestActivity(t *testing.T, cfg Config) (*Activity, *clock.FakeClock) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portd.db")
	st, err := store.Open(store.Config{Path: path, PoolSize: 2})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clk := clock.Fake(time.Unix(1700000000, 0))
	return New(st, clk, cfg, nil), clk
}

func TestRecordAndList(t *testing.T) {
	a, _ := newTestActivity(t, Config{})
	ctx := context.Background()

	target := "myapp:api"
	a.Record(ctx, "port", "claim", &target, map[string]any{"port": 20001}, nil)

	entries, err := a.List(ctx, store.ActivityFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "claim" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestTruncateByAge(t *testing.T) {
	a, clk := newTestActivity(t, Config{MaxAge: time.Hour})
	ctx := context.Background()

	a.Record(ctx, "port", "claim", nil, nil, nil)
	clk.Advance(2 * time.Hour)
	a.Record(ctx, "port", "claim", nil, nil, nil)

	removed, err := a.Truncate(ctx)
	if err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}
