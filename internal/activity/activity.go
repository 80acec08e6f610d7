// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package activity is the uniform audit log every mutating kernel
// operation writes one entry to, and the read path behind /activity.
package activity

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/curiositech/port-daddy/internal/store"
	"github.com/curiositech/port-daddy/lib/clock"
)

// Config bounds activity-log retention.
type Config struct {
	MaxAge    time.Duration
	MaxRows   int
}

// Activity records and queries the audit log.
type Activity struct {
	store  *store.Store
	clock  clock.Clock
	logger *slog.Logger
	cfg    Config
}

// New constructs an Activity component.
func New(st *store.Store, clk clock.Clock, cfg Config, logger *slog.Logger) *Activity {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * 24 * time.Hour
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 100_000
	}
	return &Activity{store: st, clock: clk, logger: logger, cfg: cfg}
}

// Record appends one audit entry. details, if non-nil, is JSON
// encoded. Failures to record are logged, never propagated — activity
// logging must not block the mutating operation it describes.
func (a *Activity) Record(ctx context.Context, entryType, action string, target *string, details any, agentID *string) {
	now := a.clock.Now().UnixMilli()

	var detailsJSON *string
	if details != nil {
		encoded, err := json.Marshal(details)
		if err != nil {
			if a.logger != nil {
				a.logger.Warn("activity: encoding details", "error", err)
			}
		} else {
			s := string(encoded)
			detailsJSON = &s
		}
	}

	if _, err := a.store.InsertActivity(ctx, store.ActivityEntry{
		Type: entryType, Action: action, Target: target, Details: detailsJSON, AgentID: agentID, CreatedAt: now,
	}); err != nil && a.logger != nil {
		a.logger.Warn("activity: recording entry", "type", entryType, "action", action, "error", err)
	}
}

// List returns activity entries matching filter.
func (a *Activity) List(ctx context.Context, filter store.ActivityFilter) ([]store.ActivityEntry, error) {
	return a.store.ListActivity(ctx, filter)
}

// Truncate enforces the configured age and row-count retention
// bounds. Called by the reaper sweep.
func (a *Activity) Truncate(ctx context.Context) (int, error) {
	ageCutoff := a.clock.Now().Add(-a.cfg.MaxAge).UnixMilli()
	return a.store.TruncateActivity(ctx, ageCutoff, a.cfg.MaxRows)
}
