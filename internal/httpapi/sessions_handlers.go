// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"net/http"
	"strconv"

	"github.com/curiositech/port-daddy/internal/kernelerr"
	"github.com/curiositech/port-daddy/internal/sessions"
)

type startSessionRequest struct {
	Purpose   *string  `json:"purpose"`
	CreatedBy *string  `json:"created_by"`
	Identity  *string  `json:"identity"`
	Files     []string `json:"files"`
	Force     bool     `json:"force"`
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body: %v", err)
		return
	}

	result, err := h.deps.Sessions.Start(r.Context(), sessions.StartRequest{
		Purpose:   req.Purpose,
		CreatedBy: req.CreatedBy,
		Identity:  req.Identity,
		Files:     req.Files,
		Force:     req.Force,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.recordActivity(r.Context(), "session", "start", &result.SessionID, envelope{"conflicts": result.Conflicts})
	h.writeOK(w, envelope{"session_id": result.SessionID, "conflicts": result.Conflicts})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var status *string
	if v := r.URL.Query().Get("status"); v != "" {
		status = &v
	}
	list, err := h.deps.Sessions.List(r.Context(), status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, envelope{"sessions": list})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := h.deps.Sessions.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if sess == nil {
		h.writeError(w, kernelerr.New(kernelerr.NotFound, "unknown session"))
		return
	}
	notes, err := h.deps.Sessions.Notes(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	files, err := h.deps.Sessions.FileClaims(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, envelope{"session": sess, "notes": notes, "files": files})
}

type endSessionRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req endSessionRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body: %v", err)
		return
	}
	if err := h.deps.Sessions.End(r.Context(), id, req.Status); err != nil {
		h.writeError(w, err)
		return
	}
	h.recordActivity(r.Context(), "session", "end", &id, envelope{"status": req.Status})
	h.writeOK(w, nil)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	found, err := h.deps.Sessions.Delete(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !found {
		h.writeError(w, kernelerr.New(kernelerr.NotFound, "unknown session"))
		return
	}
	h.recordActivity(r.Context(), "session", "delete", &id, nil)
	h.writeOK(w, nil)
}

type addNoteRequest struct {
	Content   string  `json:"content"`
	Type      *string `json:"type"`
	CreatedBy *string `json:"created_by"`
}

func (h *Handler) handleAddNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req addNoteRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body: %v", err)
		return
	}

	sessionID, noteID, err := h.deps.Sessions.AddNote(r.Context(), sessions.AddNoteRequest{
		SessionID: &id,
		Content:   req.Content,
		Type:      req.Type,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.recordActivity(r.Context(), "session", "add_note", &sessionID, envelope{"note_id": noteID})
	h.writeOK(w, envelope{"session_id": sessionID, "note_id": noteID})
}

type quickNoteRequest struct {
	Content   string  `json:"content"`
	Type      *string `json:"type"`
	CreatedBy *string `json:"created_by"`
	SessionID *string `json:"session_id"`
}

func (h *Handler) handleQuickNote(w http.ResponseWriter, r *http.Request) {
	var req quickNoteRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body: %v", err)
		return
	}

	sessionID, noteID, err := h.deps.Sessions.AddNote(r.Context(), sessions.AddNoteRequest{
		SessionID: req.SessionID,
		Content:   req.Content,
		Type:      req.Type,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.recordActivity(r.Context(), "session", "add_note", &sessionID, envelope{"note_id": noteID})
	h.writeOK(w, envelope{"session_id": sessionID, "note_id": noteID})
}

func (h *Handler) handleRecentNotes(w http.ResponseWriter, r *http.Request) {
	var noteType *string
	if v := r.URL.Query().Get("type"); v != "" {
		noteType = &v
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			h.badRequest(w, "limit must be an integer")
			return
		}
		limit = parsed
	}

	notes, err := h.deps.Sessions.RecentNotes(r.Context(), noteType, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, envelope{"notes": notes})
}

type filesRequest struct {
	Files []string `json:"files"`
	Force bool     `json:"force"`
}

func (h *Handler) handleAddFiles(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req filesRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body: %v", err)
		return
	}

	conflicts, err := h.deps.Sessions.AddFiles(r.Context(), id, req.Files, req.Force)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.recordActivity(r.Context(), "session", "add_files", &id, envelope{"files": req.Files, "conflicts": conflicts})
	h.writeOK(w, envelope{"conflicts": conflicts})
}

func (h *Handler) handleRemoveFiles(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req filesRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body: %v", err)
		return
	}

	count, err := h.deps.Sessions.RemoveFiles(r.Context(), id, req.Files)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.recordActivity(r.Context(), "session", "remove_files", &id, envelope{"files": req.Files, "removed": count})
	h.writeOK(w, envelope{"removed": count})
}
