// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ports

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/curiositech/port-daddy/internal/procutil"
	"github.com/curiositech/port-daddy/internal/store"
	"github.com/curiositech/port-daddy/lib/clock"
	"github.com/curiositech/port-daddy/lib/identity"
)

func newTestPorts(t *testing.T) (*Ports, *clock.FakeClock) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portd.db")
	st, err := store.Open(store.Config{Path: path, PoolSize: 2})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clk := clock.Fake(time.Unix(1700000000, 0))
	scanner := procutil.NewListeningPortScanner(clk, 0)
	p := New(st, clk, scanner, Config{RangeMin: 21000, RangeMax: 21010, ClaimRetries: 5}, nil)
	return p, clk
}

func TestClaimAssignsFromRange(t *testing.T) {
	p, _ := newTestPorts(t)
	ctx := context.Background()
	id, err := identity.Parse("acme:api")
	if err != nil {
		t.Fatalf("identity.Parse: %v", err)
	}

	res, err := p.Claim(ctx, id, ClaimRequest{})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if res.Existing {
		t.Fatalf("expected a fresh claim")
	}
	if res.Port < 21000 || res.Port > 21010 {
		t.Fatalf("port %d out of configured range", res.Port)
	}
}

func TestClaimReturnsExistingForLivePID(t *testing.T) {
	p, _ := newTestPorts(t)
	ctx := context.Background()
	id, err := identity.Parse("acme:api")
	if err != nil {
		t.Fatalf("identity.Parse: %v", err)
	}

	self := int64(os.Getpid())
	first, err := p.Claim(ctx, id, ClaimRequest{PID: &self})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	second, err := p.Claim(ctx, id, ClaimRequest{PID: &self})
	if err != nil {
		t.Fatalf("Claim (second): %v", err)
	}
	if !second.Existing || second.Port != first.Port {
		t.Fatalf("expected existing claim with same port, got %+v", second)
	}
}

func TestClaimReclaimsDeadPID(t *testing.T) {
	p, _ := newTestPorts(t)
	ctx := context.Background()
	id, err := identity.Parse("acme:api")
	if err != nil {
		t.Fatalf("identity.Parse: %v", err)
	}

	deadPID := int64(999999)
	first, err := p.Claim(ctx, id, ClaimRequest{PID: &deadPID})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	self := int64(os.Getpid())
	second, err := p.Claim(ctx, id, ClaimRequest{PID: &self})
	if err != nil {
		t.Fatalf("Claim (second): %v", err)
	}
	if second.Existing {
		t.Fatalf("expected a fresh claim after dead pid reclamation")
	}
	_ = first
}

func TestReleaseByWildcard(t *testing.T) {
	p, _ := newTestPorts(t)
	ctx := context.Background()

	for _, name := range []string{"acme:api", "acme:worker"} {
		id, err := identity.Parse(name)
		if err != nil {
			t.Fatalf("identity.Parse(%s): %v", name, err)
		}
		if _, err := p.Claim(ctx, id, ClaimRequest{}); err != nil {
			t.Fatalf("Claim(%s): %v", name, err)
		}
	}

	query, err := identity.ParseQuery("acme:*")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	count, err := p.Release(ctx, query)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 released, got %d", count)
	}
}

func TestReleaseExpiredSkipsServiceWithoutPID(t *testing.T) {
	p, _ := newTestPorts(t)
	ctx := context.Background()
	id, err := identity.Parse("acme:api")
	if err != nil {
		t.Fatalf("identity.Parse: %v", err)
	}
	if _, err := p.Claim(ctx, id, ClaimRequest{}); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	count, err := p.ReleaseExpired(ctx)
	if err != nil {
		t.Fatalf("ReleaseExpired: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected a pid-less claim to survive a sweep, got %d released", count)
	}

	if _, err := p.Get(ctx, id); err != nil {
		t.Fatalf("Get: %v", err)
	}
}

func TestReleaseExpiredKeepsLivePID(t *testing.T) {
	p, _ := newTestPorts(t)
	ctx := context.Background()
	id, err := identity.Parse("acme:api")
	if err != nil {
		t.Fatalf("identity.Parse: %v", err)
	}
	self := int64(os.Getpid())
	if _, err := p.Claim(ctx, id, ClaimRequest{PID: &self}); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	count, err := p.ReleaseExpired(ctx)
	if err != nil {
		t.Fatalf("ReleaseExpired: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected a live-pid claim to survive a sweep, got %d released", count)
	}
}

func TestReleaseExpiredReapsDeadPID(t *testing.T) {
	p, _ := newTestPorts(t)
	ctx := context.Background()
	id, err := identity.Parse("acme:api")
	if err != nil {
		t.Fatalf("identity.Parse: %v", err)
	}
	deadPID := int64(999999)
	if _, err := p.Claim(ctx, id, ClaimRequest{PID: &deadPID}); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	count, err := p.ReleaseExpired(ctx)
	if err != nil {
		t.Fatalf("ReleaseExpired: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the dead-pid claim to be reaped, got %d released", count)
	}
}

func TestSetEndpoint(t *testing.T) {
	p, _ := newTestPorts(t)
	ctx := context.Background()
	id, err := identity.Parse("acme:api")
	if err != nil {
		t.Fatalf("identity.Parse: %v", err)
	}
	if _, err := p.Claim(ctx, id, ClaimRequest{}); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	found, err := p.SetEndpoint(ctx, id, "http", "http://localhost:21000")
	if err != nil {
		t.Fatalf("SetEndpoint: %v", err)
	}
	if !found {
		t.Fatalf("expected SetEndpoint to find the service")
	}

	svc, err := p.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if svc.Endpoints["http"] != "http://localhost:21000" {
		t.Fatalf("endpoint not persisted: %+v", svc.Endpoints)
	}
}
