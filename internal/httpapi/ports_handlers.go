// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"net/http"

	"github.com/curiositech/port-daddy/internal/kernelerr"
	"github.com/curiositech/port-daddy/internal/ports"
	"github.com/curiositech/port-daddy/lib/identity"
)

type claimRequest struct {
	Identity      string `json:"identity"`
	PreferredPort int    `json:"preferred_port"`
	ExpiresInMS   int64  `json:"expires_in_ms"`
	PID           *int64 `json:"pid"`
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body: %v", err)
		return
	}
	if idParam := r.PathValue("id"); idParam != "" {
		req.Identity = idParam
	}

	id, err := identity.Parse(req.Identity)
	if err != nil {
		h.badRequest(w, "%v", err)
		return
	}
	if err := validatePort(req.PreferredPort); err != nil {
		h.writeError(w, err)
		return
	}
	if req.PID != nil {
		if err := validatePID(*req.PID); err != nil {
			h.writeError(w, err)
			return
		}
	}
	ttl, err := parseTTLMillis(req.ExpiresInMS)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.deps.Ports.Claim(r.Context(), id, ports.ClaimRequest{
		PreferredPort: req.PreferredPort,
		ExpiresIn:     ttl,
		PID:           req.PID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	idStr := id.String()
	h.recordActivity(r.Context(), "port", "claim", &idStr, envelope{"port": result.Port, "existing": result.Existing})
	h.writeOK(w, envelope{"port": result.Port, "existing": result.Existing})
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("expired") == "true" {
		count, err := h.deps.Ports.ReleaseExpired(r.Context())
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.recordActivity(r.Context(), "port", "release_expired", nil, envelope{"released": count})
		h.writeOK(w, envelope{"released": count})
		return
	}

	pattern := r.PathValue("id")
	if pattern == "" {
		pattern = r.URL.Query().Get("pattern")
	}
	if pattern == "" {
		h.badRequest(w, "identity or pattern is required")
		return
	}

	query, err := identity.ParseQuery(pattern)
	if err != nil {
		h.badRequest(w, "%v", err)
		return
	}

	count, err := h.deps.Ports.Release(r.Context(), query)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.recordActivity(r.Context(), "port", "release", &pattern, envelope{"released": count})
	h.writeOK(w, envelope{"released": count})
}

func (h *Handler) handleListServices(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	var query *identity.Identity
	if pattern != "" {
		parsed, err := identity.ParseQuery(pattern)
		if err != nil {
			h.badRequest(w, "%v", err)
			return
		}
		query = &parsed
	}

	services, err := h.deps.Ports.List(r.Context(), query)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, envelope{"services": services})
}

func (h *Handler) handleGetService(w http.ResponseWriter, r *http.Request) {
	id, err := identity.Parse(r.PathValue("id"))
	if err != nil {
		h.badRequest(w, "%v", err)
		return
	}

	svc, err := h.deps.Ports.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if svc == nil {
		h.writeError(w, kernelerr.New(kernelerr.NotFound, "unknown service"))
		return
	}
	h.writeOK(w, envelope{"service": svc})
}

type setEndpointRequest struct {
	Env string `json:"env"`
	URL string `json:"url"`
}

func (h *Handler) handleSetEndpoint(w http.ResponseWriter, r *http.Request) {
	id, err := identity.Parse(r.PathValue("id"))
	if err != nil {
		h.badRequest(w, "%v", err)
		return
	}

	var req setEndpointRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body: %v", err)
		return
	}
	if req.Env == "" || req.URL == "" {
		h.badRequest(w, "env and url are required")
		return
	}

	found, err := h.deps.Ports.SetEndpoint(r.Context(), id, req.Env, req.URL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !found {
		h.writeError(w, kernelerr.New(kernelerr.NotFound, "unknown service"))
		return
	}
	idStr := id.String()
	h.recordActivity(r.Context(), "port", "set_endpoint", &idStr, envelope{"env": req.Env, "url": req.URL})
	h.writeOK(w, nil)
}
