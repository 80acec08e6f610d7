// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"net/http"

	"github.com/curiositech/port-daddy/internal/changelog"
	"github.com/curiositech/port-daddy/lib/identity"
)

type appendChangelogRequest struct {
	Identity    string  `json:"identity"`
	Type        string  `json:"type"`
	Summary     string  `json:"summary"`
	Description *string `json:"description"`
	SessionID   *string `json:"session_id"`
	AgentID     *string `json:"agent_id"`
}

func (h *Handler) handleAppendChangelog(w http.ResponseWriter, r *http.Request) {
	var req appendChangelogRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body: %v", err)
		return
	}

	id, err := identity.Parse(req.Identity)
	if err != nil {
		h.badRequest(w, "invalid identity: %v", err)
		return
	}

	entryID, err := h.deps.Changelog.Append(r.Context(), changelog.AppendRequest{
		Identity:    id,
		Type:        req.Type,
		Summary:     req.Summary,
		Description: req.Description,
		SessionID:   req.SessionID,
		AgentID:     req.AgentID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	idStr := id.String()
	h.recordActivity(r.Context(), "changelog", "append", &idStr, envelope{"id": entryID, "type": req.Type})
	h.writeOK(w, envelope{"id": entryID})
}

func (h *Handler) handleListChangelog(w http.ResponseWriter, r *http.Request) {
	query := identity.Identity{}
	if v := r.URL.Query().Get("identity"); v != "" {
		parsed, err := identity.ParseQuery(v)
		if err != nil {
			h.badRequest(w, "invalid identity: %v", err)
			return
		}
		query = parsed
	}

	entries, err := h.deps.Changelog.List(r.Context(), query)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, envelope{"entries": entries})
}
