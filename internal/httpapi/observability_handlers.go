// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeOK(w, envelope{"status": "ok"})
}

func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	version := h.cfg.Version
	if version == "" {
		version = "dev"
	}
	h.writeOK(w, envelope{"version": version})
}

// handleMetrics delegates to promhttp.Handler(), exposing every
// counter/gauge/histogram registered under internal/metrics in the
// standard Prometheus text exposition format.
func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// handleConfig reports the non-sensitive subset of the running
// configuration useful for client debugging: the HTTP surface's own
// transport limits. Secrets and filesystem paths are deliberately
// excluded.
func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	h.writeOK(w, envelope{
		"version":              h.cfg.Version,
		"max_body_bytes":       h.cfg.MaxBodyBytes,
		"max_body_bytes_human": humanize.Bytes(uint64(h.cfg.MaxBodyBytes)),
		"max_sse_streams":      h.cfg.MaxSSEStreams,
	})
}

// handleReap triggers an out-of-band sweep, for operator debugging and
// tests — the normal path is the reaper's own schedule.
func (h *Handler) handleReap(w http.ResponseWriter, r *http.Request) {
	if h.deps.Reaper == nil {
		h.writeError(w, errReaperUnavailable)
		return
	}
	h.deps.Reaper.Sweep(r.Context())
	h.writeOK(w, nil)
}
