// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package collabsocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/curiositech/port-daddy/internal/agents"
	"github.com/curiositech/port-daddy/internal/changelog"
	"github.com/curiositech/port-daddy/internal/kernelerr"
	"github.com/curiositech/port-daddy/internal/locks"
	"github.com/curiositech/port-daddy/internal/ports"
	"github.com/curiositech/port-daddy/internal/sessions"
	"github.com/curiositech/port-daddy/lib/codec"
	"github.com/curiositech/port-daddy/lib/identity"
	"github.com/curiositech/port-daddy/lib/service"
)

// registerActions binds every collaborator-facing action to deps.
// Actions are named "<domain>.<verb>", mirroring the HTTP surface's
// routes without the transport-specific path/method shape.
func registerActions(server *service.SocketServer, deps Deps) {
	server.Handle("port.claim", func(ctx context.Context, raw []byte) (any, error) {
		var req struct {
			Identity      string `cbor:"identity"`
			PreferredPort int    `cbor:"preferred_port"`
			ExpiresInMS   int64  `cbor:"expires_in_ms"`
			PID           *int64 `cbor:"pid"`
		}
		if err := decodeAction(raw, &req); err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid request: "+err.Error())
		}
		id, err := identity.Parse(req.Identity)
		if err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid identity: "+err.Error())
		}
		result, err := deps.Ports.Claim(ctx, id, ports.ClaimRequest{
			PreferredPort: req.PreferredPort,
			ExpiresIn:     time.Duration(req.ExpiresInMS) * time.Millisecond,
			PID:           req.PID,
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	})

	server.Handle("port.release", func(ctx context.Context, raw []byte) (any, error) {
		var req struct {
			Identity string `cbor:"identity"`
		}
		if err := decodeAction(raw, &req); err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid request: "+err.Error())
		}
		query, err := identity.ParseQuery(req.Identity)
		if err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid identity: "+err.Error())
		}
		count, err := deps.Ports.Release(ctx, query)
		if err != nil {
			return nil, err
		}
		return struct {
			Released int `cbor:"released"`
		}{Released: count}, nil
	})

	server.Handle("port.list", func(ctx context.Context, raw []byte) (any, error) {
		var req struct {
			Identity *string `cbor:"identity"`
		}
		if err := decodeAction(raw, &req); err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid request: "+err.Error())
		}
		var query *identity.Identity
		if req.Identity != nil {
			parsed, err := identity.ParseQuery(*req.Identity)
			if err != nil {
				return nil, kernelerr.New(kernelerr.Validation, "invalid identity: "+err.Error())
			}
			query = &parsed
		}
		return deps.Ports.List(ctx, query)
	})

	server.Handle("lock.acquire", func(ctx context.Context, raw []byte) (any, error) {
		var req struct {
			Name    string `cbor:"name"`
			Owner   string `cbor:"owner"`
			TTLMS   int64  `cbor:"ttl_ms"`
			PID     *int64 `cbor:"pid"`
		}
		if err := decodeAction(raw, &req); err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid request: "+err.Error())
		}
		return deps.Locks.Acquire(ctx, req.Name, locks.AcquireRequest{
			Owner: req.Owner,
			TTL:   time.Duration(req.TTLMS) * time.Millisecond,
			PID:   req.PID,
		})
	})

	server.Handle("lock.release", func(ctx context.Context, raw []byte) (any, error) {
		var req struct {
			Name  string `cbor:"name"`
			Owner string `cbor:"owner"`
			Force bool   `cbor:"force"`
		}
		if err := decodeAction(raw, &req); err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid request: "+err.Error())
		}
		released, err := deps.Locks.Release(ctx, req.Name, req.Owner, req.Force)
		if err != nil {
			return nil, err
		}
		return struct {
			Released bool `cbor:"released"`
		}{Released: released}, nil
	})

	server.Handle("lock.check", func(ctx context.Context, raw []byte) (any, error) {
		var req struct {
			Name string `cbor:"name"`
		}
		if err := decodeAction(raw, &req); err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid request: "+err.Error())
		}
		return deps.Locks.Check(ctx, req.Name)
	})

	server.Handle("msg.publish", func(ctx context.Context, raw []byte) (any, error) {
		var req struct {
			Channel string          `cbor:"channel"`
			Payload codec.RawMessage `cbor:"payload"`
			Sender  *string         `cbor:"sender"`
		}
		if err := decodeAction(raw, &req); err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid request: "+err.Error())
		}
		// The store and its HTTP surface speak JSON payloads; decode
		// the CBOR value generically and re-encode as JSON so a
		// socket publisher and an HTTP publisher land identical rows.
		var payload any
		if err := codec.Unmarshal(req.Payload, &payload); err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid payload: "+err.Error())
		}
		jsonPayload, err := json.Marshal(payload)
		if err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid payload: "+err.Error())
		}
		seq, err := deps.Messaging.Publish(ctx, req.Channel, jsonPayload, req.Sender)
		if err != nil {
			return nil, err
		}
		return struct {
			Sequence int64 `cbor:"sequence"`
		}{Sequence: seq}, nil
	})

	server.Handle("msg.history", func(ctx context.Context, raw []byte) (any, error) {
		var req struct {
			Channel string `cbor:"channel"`
			Since   int64  `cbor:"since"`
			Limit   int    `cbor:"limit"`
		}
		if err := decodeAction(raw, &req); err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid request: "+err.Error())
		}
		return deps.Messaging.Messages(ctx, req.Channel, req.Since, req.Limit)
	})

	server.Handle("agent.register", func(ctx context.Context, raw []byte) (any, error) {
		var req struct {
			ID              string  `cbor:"id"`
			Type            string  `cbor:"type"`
			Purpose         *string `cbor:"purpose"`
			IdentityProject *string `cbor:"identity_project"`
			IdentityStack   *string `cbor:"identity_stack"`
			IdentityContext *string `cbor:"identity_context"`
			WorktreeID      *string `cbor:"worktree_id"`
		}
		if err := decodeAction(raw, &req); err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid request: "+err.Error())
		}
		return deps.Agents.Register(ctx, req.ID, agents.RegisterRequest{
			Type:            req.Type,
			Purpose:         req.Purpose,
			IdentityProject: req.IdentityProject,
			IdentityStack:   req.IdentityStack,
			IdentityContext: req.IdentityContext,
			WorktreeID:      req.WorktreeID,
		})
	})

	server.Handle("agent.heartbeat", func(ctx context.Context, raw []byte) (any, error) {
		var req struct {
			ID string `cbor:"id"`
		}
		if err := decodeAction(raw, &req); err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid request: "+err.Error())
		}
		return nil, deps.Agents.Heartbeat(ctx, req.ID)
	})

	server.Handle("session.start", func(ctx context.Context, raw []byte) (any, error) {
		var req struct {
			Purpose   *string  `cbor:"purpose"`
			CreatedBy *string  `cbor:"created_by"`
			Identity  *string  `cbor:"identity"`
			Files     []string `cbor:"files"`
			Force     bool     `cbor:"force"`
		}
		if err := decodeAction(raw, &req); err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid request: "+err.Error())
		}
		return deps.Sessions.Start(ctx, sessions.StartRequest{
			Purpose:   req.Purpose,
			CreatedBy: req.CreatedBy,
			Identity:  req.Identity,
			Files:     req.Files,
			Force:     req.Force,
		})
	})

	server.Handle("session.note", func(ctx context.Context, raw []byte) (any, error) {
		var req struct {
			SessionID *string `cbor:"session_id"`
			Content   string  `cbor:"content"`
			Type      *string `cbor:"type"`
			CreatedBy *string `cbor:"created_by"`
		}
		if err := decodeAction(raw, &req); err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid request: "+err.Error())
		}
		sessionID, noteID, err := deps.Sessions.AddNote(ctx, sessions.AddNoteRequest{
			SessionID: req.SessionID,
			Content:   req.Content,
			Type:      req.Type,
			CreatedBy: req.CreatedBy,
		})
		if err != nil {
			return nil, err
		}
		return struct {
			SessionID string `cbor:"session_id"`
			NoteID    int64  `cbor:"note_id"`
		}{SessionID: sessionID, NoteID: noteID}, nil
	})

	server.Handle("salvage.list", func(ctx context.Context, raw []byte) (any, error) {
		var req struct {
			State   *string `cbor:"state"`
			Project string  `cbor:"project"`
		}
		if err := decodeAction(raw, &req); err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid request: "+err.Error())
		}
		return deps.Salvage.List(ctx, req.State, req.Project)
	})

	server.Handle("salvage.claim", func(ctx context.Context, raw []byte) (any, error) {
		var req struct {
			ID        string `cbor:"id"`
			ClaimedBy string `cbor:"claimed_by"`
		}
		if err := decodeAction(raw, &req); err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid request: "+err.Error())
		}
		return nil, deps.Salvage.Claim(ctx, req.ID, req.ClaimedBy)
	})

	server.Handle("changelog.append", func(ctx context.Context, raw []byte) (any, error) {
		var req struct {
			Identity    string  `cbor:"identity"`
			Type        string  `cbor:"type"`
			Summary     string  `cbor:"summary"`
			Description *string `cbor:"description"`
			SessionID   *string `cbor:"session_id"`
			AgentID     *string `cbor:"agent_id"`
		}
		if err := decodeAction(raw, &req); err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid request: "+err.Error())
		}
		parsedIdentity, err := identity.Parse(req.Identity)
		if err != nil {
			return nil, kernelerr.New(kernelerr.Validation, "invalid identity: "+err.Error())
		}
		entryID, err := deps.Changelog.Append(ctx, changelog.AppendRequest{
			Identity:    parsedIdentity,
			Type:        req.Type,
			Summary:     req.Summary,
			Description: req.Description,
			SessionID:   req.SessionID,
			AgentID:     req.AgentID,
		})
		if err != nil {
			return nil, err
		}
		return struct {
			ID string `cbor:"id"`
		}{ID: entryID}, nil
	})
}
