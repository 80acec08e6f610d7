// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import "net/http"

func (h *Handler) handleListSalvage(w http.ResponseWriter, r *http.Request) {
	var state *string
	if v := r.URL.Query().Get("state"); v != "" {
		state = &v
	}
	project := r.URL.Query().Get("project")

	entries, err := h.deps.Salvage.List(r.Context(), state, project)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, envelope{"entries": entries})
}

type claimSalvageRequest struct {
	ID        string `json:"id"`
	ClaimedBy string `json:"claimed_by"`
}

func (h *Handler) handleClaimSalvage(w http.ResponseWriter, r *http.Request) {
	var req claimSalvageRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body: %v", err)
		return
	}
	if req.ID == "" || req.ClaimedBy == "" {
		h.badRequest(w, "id and claimed_by are required")
		return
	}

	if err := h.deps.Salvage.Claim(r.Context(), req.ID, req.ClaimedBy); err != nil {
		h.writeError(w, err)
		return
	}
	h.recordActivity(r.Context(), "salvage", "claim", &req.ID, envelope{"claimed_by": req.ClaimedBy})
	h.writeOK(w, nil)
}

func (h *Handler) handleDismissSalvage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.deps.Salvage.Dismiss(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.recordActivity(r.Context(), "salvage", "dismiss", &id, nil)
	h.writeOK(w, nil)
}

func (h *Handler) handleCompleteSalvage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.deps.Salvage.Complete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.recordActivity(r.Context(), "salvage", "complete", &id, nil)
	h.writeOK(w, nil)
}

func (h *Handler) handleAbandonSalvage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.deps.Salvage.Abandon(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.recordActivity(r.Context(), "salvage", "abandon", &id, nil)
	h.writeOK(w, nil)
}
