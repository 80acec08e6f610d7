// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package changelog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/curiositech/port-daddy/internal/store"
	"github.com/curiositech/port-daddy/lib/clock"
	"github.com/curiositech/port-daddy/lib/identity"
)

func newTestChangelog(t *testing.T) *Changelog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portd.db")
	st, err := store.Open(store.Config{Path: path, PoolSize: 2})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clk := clock.Fake(time.Unix(1700000000, 0))
	return New(st, clk, nil)
}

func TestAppendAndExactMatch(t *testing.T) {
	c := newTestChangelog(t)
	ctx := context.Background()

	id, err := identity.Parse("myapp:api")
	if err != nil {
		t.Fatalf("identity.Parse: %v", err)
	}
	if _, err := c.Append(ctx, AppendRequest{Identity: id, Type: "deploy", Summary: "shipped v2"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := c.List(ctx, id)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

func TestListRollsUpToAncestor(t *testing.T) {
	c := newTestChangelog(t)
	ctx := context.Background()

	child, err := identity.Parse("myapp:api")
	if err != nil {
		t.Fatalf("identity.Parse: %v", err)
	}
	if _, err := c.Append(ctx, AppendRequest{Identity: child, Type: "deploy", Summary: "shipped v2"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	project, err := identity.Parse("myapp")
	if err != nil {
		t.Fatalf("identity.Parse: %v", err)
	}
	entries, err := c.List(ctx, project)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected rollup visibility for the project-level query, got %d", len(entries))
	}

	other, err := identity.Parse("otherapp")
	if err != nil {
		t.Fatalf("identity.Parse: %v", err)
	}
	entries2, err := c.List(ctx, other)
	if err != nil {
		t.Fatalf("List (other): %v", err)
	}
	if len(entries2) != 0 {
		t.Fatalf("expected no visibility for unrelated project, got %d", len(entries2))
	}
}
