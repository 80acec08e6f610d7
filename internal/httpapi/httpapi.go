// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi is the REST-shaped HTTP surface over the
// coordination kernel's domain components: routing, request
// validation, JSON envelope encoding, rate limiting, and the SSE
// publish/subscribe pump.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/curiositech/port-daddy/internal/activity"
	"github.com/curiositech/port-daddy/internal/agents"
	"github.com/curiositech/port-daddy/internal/changelog"
	"github.com/curiositech/port-daddy/internal/kernelerr"
	"github.com/curiositech/port-daddy/internal/locks"
	"github.com/curiositech/port-daddy/internal/messaging"
	"github.com/curiositech/port-daddy/internal/ports"
	"github.com/curiositech/port-daddy/internal/ratelimit"
	"github.com/curiositech/port-daddy/internal/reaper"
	"github.com/curiositech/port-daddy/internal/salvage"
	"github.com/curiositech/port-daddy/internal/sessions"
)

// maxRequestBodySize is the default request body cap (~10KiB). A
// configured RateLimitConfig.MaxBodyBytes overrides this default.
const maxRequestBodySize = 10 * 1024

// Deps are the domain components the HTTP surface dispatches to.
type Deps struct {
	Ports     *ports.Ports
	Locks     *locks.Locks
	Messaging *messaging.Messaging
	Agents    *agents.Agents
	Sessions  *sessions.Sessions
	Salvage   *salvage.Salvage
	Activity  *activity.Activity
	Changelog *changelog.Changelog
	Reaper    *reaper.Reaper
	RateLimit *ratelimit.Limiter
}

// Config configures transport-level limits not owned by a domain
// component.
type Config struct {
	MaxBodyBytes int

	// MaxSSEStreams bounds concurrent subscribe streams per source
	// address, not process-wide.
	MaxSSEStreams int
	Version       string
}

// Handler dispatches HTTP requests to the kernel's domain components.
type Handler struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	sseLimiter *sseLimiter
}

// New constructs a Handler.
func New(deps Deps, cfg Config, logger *slog.Logger) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = maxRequestBodySize
	}
	maxSSE := cfg.MaxSSEStreams
	if maxSSE <= 0 {
		maxSSE = 10
	}
	return &Handler{
		deps:       deps,
		cfg:        cfg,
		logger:     logger,
		sseLimiter: newSSELimiter(maxSSE),
	}
}

// Routes builds the method-and-pattern ServeMux, grounded on
// proxy/server.go's agentMux.HandleFunc("METHOD /path", ...) shape.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /claim", h.handleClaim)
	mux.HandleFunc("POST /claim/{id}", h.handleClaim)
	mux.HandleFunc("DELETE /release", h.handleRelease)
	mux.HandleFunc("DELETE /release/{id}", h.handleRelease)
	mux.HandleFunc("GET /services", h.handleListServices)
	mux.HandleFunc("GET /services/{id}", h.handleGetService)
	mux.HandleFunc("PUT /services/{id}/endpoint", h.handleSetEndpoint)

	mux.HandleFunc("POST /locks/{name}", h.handleLockAcquire)
	mux.HandleFunc("PUT /locks/{name}", h.handleLockExtend)
	mux.HandleFunc("DELETE /locks/{name}", h.handleLockRelease)
	mux.HandleFunc("GET /locks", h.handleLockList)
	mux.HandleFunc("GET /locks/{name}", h.handleLockCheck)

	mux.HandleFunc("POST /msg/{channel}", h.handlePublish)
	mux.HandleFunc("GET /msg/{channel}", h.handleMessageHistory)
	mux.HandleFunc("DELETE /msg/{channel}", h.handleClearChannel)
	mux.HandleFunc("GET /subscribe/{channel}", h.handleSubscribe)
	mux.HandleFunc("GET /channels", h.handleChannels)

	mux.HandleFunc("POST /agents/{id}", h.handleRegisterAgent)
	mux.HandleFunc("PUT /agents/{id}/heartbeat", h.handleHeartbeat)
	mux.HandleFunc("DELETE /agents/{id}", h.handleUnregisterAgent)
	mux.HandleFunc("GET /agents", h.handleListAgents)
	mux.HandleFunc("GET /agents/{id}", h.handleGetAgent)

	mux.HandleFunc("POST /sessions", h.handleStartSession)
	mux.HandleFunc("GET /sessions", h.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", h.handleGetSession)
	mux.HandleFunc("PUT /sessions/{id}", h.handleEndSession)
	mux.HandleFunc("DELETE /sessions/{id}", h.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/notes", h.handleAddNote)
	mux.HandleFunc("POST /sessions/{id}/files", h.handleAddFiles)
	mux.HandleFunc("DELETE /sessions/{id}/files", h.handleRemoveFiles)
	mux.HandleFunc("POST /notes", h.handleQuickNote)
	mux.HandleFunc("GET /notes", h.handleRecentNotes)

	mux.HandleFunc("GET /salvage", h.handleListSalvage)
	mux.HandleFunc("POST /salvage", h.handleClaimSalvage)
	mux.HandleFunc("POST /salvage/{id}/dismiss", h.handleDismissSalvage)
	mux.HandleFunc("POST /salvage/{id}/complete", h.handleCompleteSalvage)
	mux.HandleFunc("POST /salvage/{id}/abandon", h.handleAbandonSalvage)

	mux.HandleFunc("POST /changelog", h.handleAppendChangelog)
	mux.HandleFunc("GET /changelog", h.handleListChangelog)

	mux.HandleFunc("GET /activity", h.handleListActivity)

	mux.HandleFunc("POST /reap", h.handleReap)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /version", h.handleVersion)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
	mux.HandleFunc("GET /config", h.handleConfig)

	return mux
}

// envelope is the stable success-response shape: {"success": true, ...}.
// Handlers put extra fields in the map; writeOK sets "success" to true.
type envelope map[string]any

func (h *Handler) writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		if h.logger != nil {
			h.logger.Warn("httpapi: writing JSON response", "error", err)
		}
	}
}

func (h *Handler) writeOK(w http.ResponseWriter, value envelope) {
	if value == nil {
		value = envelope{}
	}
	value["success"] = true
	h.writeJSON(w, http.StatusOK, value)
}

// writeError maps err to a status code and the stable error envelope
// `{"error": "<message>", "code": "<STABLE_CODE>", "detail": {...}}`.
// Transient errors carry a "retryable": true detail flag. Every 5xx
// response also writes one activity row with action "error".
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= 500 && h.logger != nil {
		h.logger.Error("httpapi: unexpected error", "error", err)
	}

	kind := kernelerr.KindOf(err)
	detail := kernelerr.DetailOf(err)
	if kind == kernelerr.Transient {
		if detail == nil {
			detail = make(map[string]any)
		}
		detail["retryable"] = true
	}

	body := envelope{"error": err.Error(), "code": code}
	if len(detail) > 0 {
		body["detail"] = detail
	}
	h.writeJSON(w, status, body)

	if status >= 500 {
		h.recordActivity(nil, "http", "error", nil, envelope{"code": code, "status": status, "message": err.Error()})
	}
}

// recordActivity writes one audit row if an Activity component is
// configured; a nil ctx falls back to context.Background() so an
// error recorded after a request's context may already be canceled
// still lands. Failures are logged internally by Activity.Record and
// never propagate — activity logging must never block a response.
func (h *Handler) recordActivity(ctx context.Context, entryType, action string, target *string, details any) {
	if h.deps.Activity == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.deps.Activity.Record(ctx, entryType, action, target, details, nil)
}

func (h *Handler) badRequest(w http.ResponseWriter, format string, args ...any) {
	h.writeJSON(w, http.StatusBadRequest, envelope{
		"error": fmt.Sprintf(format, args...),
		"code":  "VALIDATION",
	})
}

// decodeJSON reads and decodes a request body, enforcing the
// configured body-size cap. Grounded on proxy/handler.go's
// http.MaxBytesReader(w, r.Body, maxRequestBodySize) pattern.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.cfg.MaxBodyBytes))
	if r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		return err
	}
	return nil
}
