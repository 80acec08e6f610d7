// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package changelog implements the supplemented project-level
// changelog: immutable entries visible to queries for their identity
// and any ancestor identity (rollup visibility).
package changelog

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/curiositech/port-daddy/internal/kernelerr"
	"github.com/curiositech/port-daddy/internal/store"
	"github.com/curiositech/port-daddy/lib/clock"
	"github.com/curiositech/port-daddy/lib/identity"
)

// Changelog manages append-only changelog entries.
type Changelog struct {
	store  *store.Store
	clock  clock.Clock
	logger *slog.Logger
}

// New constructs a Changelog component.
func New(st *store.Store, clk clock.Clock, logger *slog.Logger) *Changelog {
	return &Changelog{store: st, clock: clk, logger: logger}
}

// AppendRequest carries the fields accepted by Append.
type AppendRequest struct {
	Identity    identity.Identity
	Type        string
	Summary     string
	Description *string
	SessionID   *string
	AgentID     *string
}

// Append records a new changelog entry.
func (c *Changelog) Append(ctx context.Context, req AppendRequest) (string, error) {
	if req.Summary == "" {
		return "", kernelerr.New(kernelerr.Validation, "summary is required")
	}
	if req.Identity.IsZero() {
		return "", kernelerr.New(kernelerr.Validation, "identity is required")
	}

	id := uuid.NewString()
	now := c.clock.Now().UnixMilli()

	err := c.store.InsertChangelogEntry(ctx, store.ChangelogEntry{
		ID:          id,
		Identity:    req.Identity.String(),
		Type:        req.Type,
		Summary:     req.Summary,
		Description: req.Description,
		SessionID:   req.SessionID,
		AgentID:     req.AgentID,
		CreatedAt:   now,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// List returns changelog entries visible to a query identity: exact
// matches plus rollup from any ancestor identity's entries (an entry
// written for "a:b:c" is visible to a query for "a:b" or "a").
func (c *Changelog) List(ctx context.Context, query identity.Identity) ([]store.ChangelogEntry, error) {
	all, err := c.store.ListChangelog(ctx)
	if err != nil {
		return nil, err
	}

	var visible []store.ChangelogEntry
	for _, entry := range all {
		entryIdentity, err := identity.Parse(entry.Identity)
		if err != nil {
			continue
		}
		if entryIdentity == query || query.IsAncestorOf(entryIdentity) {
			visible = append(visible, entry)
		}
	}
	return visible, nil
}
