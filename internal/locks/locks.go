// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package locks implements named advisory locks with optional TTL
// expiry and force-release, backed by the store's lock table.
package locks

import (
	"context"
	"log/slog"
	"time"

	"github.com/curiositech/port-daddy/internal/kernelerr"
	"github.com/curiositech/port-daddy/internal/metrics"
	"github.com/curiositech/port-daddy/internal/store"
	"github.com/curiositech/port-daddy/lib/clock"
)

// Locks provides acquire/extend/release/check/list operations over
// named advisory locks.
type Locks struct {
	store  *store.Store
	clock  clock.Clock
	logger *slog.Logger
}

// New constructs a Locks component.
func New(st *store.Store, clk clock.Clock, logger *slog.Logger) *Locks {
	return &Locks{store: st, clock: clk, logger: logger}
}

// AcquireRequest carries the optional fields accepted by Acquire.
type AcquireRequest struct {
	Owner string
	TTL   time.Duration
	PID   *int64
}

// AcquireResult is the outcome of Acquire.
type AcquireResult struct {
	Acquired bool
	// HeldBy is set when Acquired is false: the current holder.
	HeldBy string
}

// Acquire attempts to take the named lock for req.Owner. If already
// held by another owner and unexpired, Acquired is false and HeldBy
// names the current holder — this is not an error.
func (l *Locks) Acquire(ctx context.Context, name string, req AcquireRequest) (*AcquireResult, error) {
	now := l.clock.Now().UnixMilli()
	var expiresAt *int64
	if req.TTL > 0 {
		v := now + req.TTL.Milliseconds()
		expiresAt = &v
	}

	acquired, held, err := l.store.AcquireLock(ctx, now, store.Lock{
		Name:       name,
		Owner:      req.Owner,
		AcquiredAt: now,
		ExpiresAt:  expiresAt,
		PID:        req.PID,
	})
	if err != nil {
		return nil, err
	}
	if !acquired {
		metrics.LockContention.WithLabelValues("acquire").Inc()
		return &AcquireResult{Acquired: false, HeldBy: held.Owner}, nil
	}
	return &AcquireResult{Acquired: true}, nil
}

// ExtendResult is the outcome of Extend.
type ExtendResult struct {
	Extended bool
	// HeldBy is set when Extended is false because another owner holds
	// the lock (as opposed to the lock not existing at all).
	HeldBy string
}

// Extend renews a held lock's expiry. Owner mismatch without force
// returns Extended=false (not an error), reporting the real holder.
func (l *Locks) Extend(ctx context.Context, name, owner string, force bool, ttl time.Duration) (*ExtendResult, error) {
	now := l.clock.Now().UnixMilli()
	var expiresAt *int64
	if ttl > 0 {
		v := now + ttl.Milliseconds()
		expiresAt = &v
	}

	var ownerPtr *string
	if !force {
		ownerPtr = &owner
	}

	extended, current, err := l.store.ExtendLock(ctx, now, name, ownerPtr, force, expiresAt)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, kernelerr.New(kernelerr.NotFound, "lock not held").WithDetail("name", name)
	}
	if !extended {
		metrics.LockContention.WithLabelValues("extend").Inc()
		return &ExtendResult{Extended: false, HeldBy: current.Owner}, nil
	}
	return &ExtendResult{Extended: true}, nil
}

// Release drops a held lock. Owner mismatch without force, or an
// already-unheld lock, returns released=false (not an error).
func (l *Locks) Release(ctx context.Context, name, owner string, force bool) (bool, error) {
	now := l.clock.Now().UnixMilli()
	var ownerPtr *string
	if !force {
		ownerPtr = &owner
	}
	return l.store.ReleaseLock(ctx, now, name, ownerPtr, force)
}

// Check returns the current lock row for name, or nil if unheld (or
// expired).
func (l *Locks) Check(ctx context.Context, name string) (*store.Lock, error) {
	now := l.clock.Now().UnixMilli()
	lock, err := l.store.GetLock(ctx, name)
	if err != nil {
		return nil, err
	}
	if lock == nil || (lock.ExpiresAt != nil && *lock.ExpiresAt <= now) {
		return nil, nil
	}
	return lock, nil
}

// List returns unexpired locks, optionally filtered by owner.
func (l *Locks) List(ctx context.Context, owner *string) ([]store.Lock, error) {
	now := l.clock.Now().UnixMilli()
	return l.store.ListLocks(ctx, now, owner)
}

// SweepExpired deletes all expired lock rows, returning the count
// removed. Called by the reaper sweep.
func (l *Locks) SweepExpired(ctx context.Context) (int, error) {
	now := l.clock.Now().UnixMilli()
	return l.store.DeleteExpiredLocks(ctx, now)
}
