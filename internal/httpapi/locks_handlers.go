// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"net/http"
	"strconv"

	"github.com/curiositech/port-daddy/internal/kernelerr"
	"github.com/curiositech/port-daddy/internal/locks"
)

type lockAcquireRequest struct {
	Owner  string `json:"owner"`
	TTLMS  int64  `json:"ttl_ms"`
	PID    *int64 `json:"pid"`
}

func (h *Handler) handleLockAcquire(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req lockAcquireRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body: %v", err)
		return
	}
	if req.PID != nil {
		if err := validatePID(*req.PID); err != nil {
			h.writeError(w, err)
			return
		}
	}
	// The owner defaults to the caller's pid when only a pid is given.
	if req.Owner == "" && req.PID != nil {
		req.Owner = strconv.FormatInt(*req.PID, 10)
	}
	if req.Owner == "" {
		h.badRequest(w, "owner is required")
		return
	}
	ttl, err := parseTTLMillis(req.TTLMS)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.deps.Locks.Acquire(r.Context(), name, locks.AcquireRequest{
		Owner: req.Owner, TTL: ttl, PID: req.PID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !result.Acquired {
		h.writeError(w, kernelerr.Newf(kernelerr.Conflict, "lock %q is held", name).WithDetail("holder", result.HeldBy))
		return
	}
	h.recordActivity(r.Context(), "lock", "acquire", &name, envelope{"owner": req.Owner})
	h.writeOK(w, envelope{"acquired": result.Acquired, "held_by": result.HeldBy})
}

type lockExtendRequest struct {
	Owner string `json:"owner"`
	Force bool   `json:"force"`
	TTLMS int64  `json:"ttl_ms"`
}

func (h *Handler) handleLockExtend(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req lockExtendRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body: %v", err)
		return
	}
	ttl, err := parseTTLMillis(req.TTLMS)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.deps.Locks.Extend(r.Context(), name, req.Owner, req.Force, ttl)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if result.Extended {
		h.recordActivity(r.Context(), "lock", "extend", &name, envelope{"owner": req.Owner, "force": req.Force})
	}
	h.writeOK(w, envelope{"extended": result.Extended, "held_by": result.HeldBy})
}

type lockReleaseRequest struct {
	Owner string `json:"owner"`
	Force bool   `json:"force"`
}

func (h *Handler) handleLockRelease(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req lockReleaseRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body: %v", err)
		return
	}

	released, err := h.deps.Locks.Release(r.Context(), name, req.Owner, req.Force)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if released {
		h.recordActivity(r.Context(), "lock", "release", &name, envelope{"owner": req.Owner, "force": req.Force})
	}
	h.writeOK(w, envelope{"released": released})
}

func (h *Handler) handleLockCheck(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	lock, err := h.deps.Locks.Check(r.Context(), name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if lock == nil {
		h.writeError(w, kernelerr.New(kernelerr.NotFound, "lock not held"))
		return
	}
	h.writeOK(w, envelope{"lock": lock})
}

func (h *Handler) handleLockList(w http.ResponseWriter, r *http.Request) {
	var owner *string
	if v := r.URL.Query().Get("owner"); v != "" {
		owner = &v
	}
	list, err := h.deps.Locks.List(r.Context(), owner)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, envelope{"locks": list})
}
