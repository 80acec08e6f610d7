// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ports implements atomic, persistent, same-name-same-port
// service registration: claim, release, and endpoint bookkeeping.
package ports

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/curiositech/port-daddy/internal/kernelerr"
	"github.com/curiositech/port-daddy/internal/metrics"
	"github.com/curiositech/port-daddy/internal/procutil"
	"github.com/curiositech/port-daddy/internal/store"
	"github.com/curiositech/port-daddy/lib/clock"
	"github.com/curiositech/port-daddy/lib/identity"
)

// Config configures the Ports component.
type Config struct {
	RangeMin     int
	RangeMax     int
	Reserved     []int
	ClaimRetries int
}

// Ports claims, renews, releases, and lists service port assignments.
type Ports struct {
	store   *store.Store
	clock   clock.Clock
	scanner *procutil.ListeningPortScanner
	logger  *slog.Logger

	rangeMin int
	rangeMax int
	reserved map[int]bool
	retries  int

	claimRetryCount atomic.Int64
}

// New constructs a Ports component.
func New(st *store.Store, clk clock.Clock, scanner *procutil.ListeningPortScanner, cfg Config, logger *slog.Logger) *Ports {
	reserved := make(map[int]bool, len(cfg.Reserved))
	for _, p := range cfg.Reserved {
		reserved[p] = true
	}
	retries := cfg.ClaimRetries
	if retries <= 0 {
		retries = 5
	}
	return &Ports{
		store:    st,
		clock:    clk,
		scanner:  scanner,
		logger:   logger,
		rangeMin: cfg.RangeMin,
		rangeMax: cfg.RangeMax,
		reserved: reserved,
		retries:  retries,
	}
}

// ClaimRequest carries the optional fields accepted by Claim.
type ClaimRequest struct {
	PreferredPort int
	ExpiresIn     time.Duration
	PID           *int64
}

// ClaimResult is the outcome of a successful Claim.
type ClaimResult struct {
	Port     int
	Existing bool
}

// Claim assigns a port to id, or returns the existing assignment if
// id's owning pid is still alive.
func (p *Ports) Claim(ctx context.Context, id identity.Identity, req ClaimRequest) (*ClaimResult, error) {
	now := p.clock.Now().UnixMilli()

	existing, err := p.store.GetService(ctx, id.String())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.PID != nil && procutil.IsAlive(*existing.PID) {
			if err := p.store.TouchService(ctx, id.String(), now); err != nil {
				return nil, err
			}
			metrics.PortClaims.WithLabelValues("existing").Inc()
			return &ClaimResult{Port: existing.Port, Existing: true}, nil
		}
		// Owning pid is dead: the stale row is reclaimed and a fresh
		// claim proceeds below.
		if _, err := p.store.DeleteService(ctx, id.String()); err != nil {
			return nil, err
		}
	}

	claimed, err := p.claimedPorts(ctx)
	if err != nil {
		return nil, err
	}

	candidate := req.PreferredPort
	for attempt := 0; attempt < p.retries; attempt++ {
		if candidate == 0 || claimed[candidate] || p.reserved[candidate] {
			candidate, err = p.findFreePort(claimed)
			if err != nil {
				return nil, err
			}
		}

		var expiresAt *int64
		if req.ExpiresIn > 0 {
			v := now + req.ExpiresIn.Milliseconds()
			expiresAt = &v
		}

		svc := store.Service{
			Identity:  id.String(),
			Port:      candidate,
			PID:       req.PID,
			ClaimedAt: now,
			LastSeen:  now,
			ExpiresAt: expiresAt,
			Endpoints: map[string]string{},
		}

		err = p.store.InsertService(ctx, svc)
		if err == nil {
			metrics.PortClaims.WithLabelValues("claimed").Inc()
			return &ClaimResult{Port: candidate, Existing: false}, nil
		}
		if kernelerr.KindOf(err) != kernelerr.Conflict {
			return nil, err
		}

		p.claimRetryCount.Add(1)
		metrics.PortClaimRetries.Inc()
		claimed[candidate] = true
		candidate = 0
	}

	metrics.PortClaims.WithLabelValues("exhausted").Inc()
	return nil, kernelerr.New(kernelerr.Transient, "exhausted claim retries searching for a free port").
		WithDetail("retries", p.retries)
}

// claimedPorts returns the set of ports currently recorded in the
// services table, used to skip known-taken ports during search.
func (p *Ports) claimedPorts(ctx context.Context) (map[int]bool, error) {
	services, err := p.store.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	claimed := make(map[int]bool, len(services))
	for _, svc := range services {
		claimed[svc.Port] = true
	}
	return claimed, nil
}

// findFreePort scans the configured range, skipping ports already
// recorded in the database, reserved ports, and ports the OS reports
// as LISTENing (cached for the configured listening-scan cache TTL,
// 2s by default).
func (p *Ports) findFreePort(claimed map[int]bool) (int, error) {
	for port := p.rangeMin; port <= p.rangeMax; port++ {
		if claimed[port] || p.reserved[port] {
			continue
		}
		listening, err := p.scanner.IsListening(port)
		if err != nil {
			return 0, kernelerr.Wrap(kernelerr.Transient, "scanning OS-level listening ports", err)
		}
		if listening {
			continue
		}
		return port, nil
	}
	return 0, kernelerr.New(kernelerr.Transient, "no free port available in configured range").
		WithDetail("range_min", p.rangeMin).WithDetail("range_max", p.rangeMax)
}

// Release deletes service rows whose identity matches query (which
// may contain a '*' wildcard per identity.ParseQuery), returning the
// count removed.
func (p *Ports) Release(ctx context.Context, query identity.Identity) (int, error) {
	services, err := p.store.ListServices(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, svc := range services {
		candidate, err := identity.Parse(svc.Identity)
		if err != nil {
			continue
		}
		if !query.Matches(candidate) {
			continue
		}
		deleted, err := p.store.DeleteService(ctx, svc.Identity)
		if err != nil {
			return count, err
		}
		if deleted {
			count++
		}
	}
	return count, nil
}

// ReleaseExpired deletes every service row whose owning pid is no
// longer alive, returning the count removed.
func (p *Ports) ReleaseExpired(ctx context.Context) (int, error) {
	services, err := p.store.ListServices(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, svc := range services {
		if svc.PID == nil {
			// Claimed without a pid; nothing to liveness-check.
			continue
		}
		if procutil.IsAlive(*svc.PID) {
			continue
		}
		deleted, err := p.store.DeleteService(ctx, svc.Identity)
		if err != nil {
			return count, err
		}
		if deleted {
			count++
		}
	}
	return count, nil
}

// List returns services matching an optional query pattern.
func (p *Ports) List(ctx context.Context, query *identity.Identity) ([]store.Service, error) {
	services, err := p.store.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	if query == nil {
		return services, nil
	}

	var filtered []store.Service
	for _, svc := range services {
		candidate, err := identity.Parse(svc.Identity)
		if err != nil {
			continue
		}
		if query.Matches(candidate) {
			filtered = append(filtered, svc)
		}
	}
	return filtered, nil
}

// Get returns the service for id, or nil.
func (p *Ports) Get(ctx context.Context, id identity.Identity) (*store.Service, error) {
	return p.store.GetService(ctx, id.String())
}

// SetEndpoint merges env→url into id's endpoint map.
func (p *Ports) SetEndpoint(ctx context.Context, id identity.Identity, env, url string) (bool, error) {
	return p.store.SetServiceEndpoint(ctx, id.String(), env, url)
}

// ClaimRetryCount returns the cumulative number of port-collision
// retries observed, for the /metrics endpoint.
func (p *Ports) ClaimRetryCount() int64 {
	return p.claimRetryCount.Load()
}
