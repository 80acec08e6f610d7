// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"net/http"

	"github.com/curiositech/port-daddy/internal/agents"
	"github.com/curiositech/port-daddy/internal/kernelerr"
)

type registerAgentRequest struct {
	Type            string  `json:"type"`
	Purpose         *string `json:"purpose"`
	IdentityProject *string `json:"identity_project"`
	IdentityStack   *string `json:"identity_stack"`
	IdentityContext *string `json:"identity_context"`
	WorktreeID      *string `json:"worktree_id"`
}

func (h *Handler) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req registerAgentRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body: %v", err)
		return
	}

	result, err := h.deps.Agents.Register(r.Context(), id, agents.RegisterRequest{
		Type:            req.Type,
		Purpose:         req.Purpose,
		IdentityProject: req.IdentityProject,
		IdentityStack:   req.IdentityStack,
		IdentityContext: req.IdentityContext,
		WorktreeID:      req.WorktreeID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.recordActivity(r.Context(), "agent", "register", &id, envelope{"is_new": result.IsNew})
	h.writeOK(w, envelope{"is_new": result.IsNew, "dead_agents_in_project": result.DeadAgentsInProject})
}

func (h *Handler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.deps.Agents.Heartbeat(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.recordActivity(r.Context(), "agent", "heartbeat", &id, nil)
	h.writeOK(w, nil)
}

func (h *Handler) handleUnregisterAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	found, err := h.deps.Agents.Unregister(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !found {
		h.writeError(w, kernelerr.New(kernelerr.NotFound, "unknown agent"))
		return
	}
	h.recordActivity(r.Context(), "agent", "unregister", &id, nil)
	h.writeOK(w, nil)
}

func (h *Handler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	state := agents.State(r.URL.Query().Get("state"))

	list, err := h.deps.Agents.List(r.Context(), project, state)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, envelope{"agents": list})
}

func (h *Handler) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, err := h.deps.Agents.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entry == nil {
		h.writeError(w, kernelerr.New(kernelerr.NotFound, "unknown agent"))
		return
	}
	h.writeOK(w, envelope{"agent": entry})
}
