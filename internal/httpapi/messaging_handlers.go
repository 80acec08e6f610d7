// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/curiositech/port-daddy/internal/kernelerr"
	"github.com/curiositech/port-daddy/lib/netutil"
)

// sseKeepAliveInterval is how often an idle subscribe stream writes a
// `: keep-alive\n\n` comment to hold intermediary proxies' connections
// open.
const sseKeepAliveInterval = 25 * time.Second

type publishRequest struct {
	Payload json.RawMessage `json:"payload"`
	Sender  *string         `json:"sender"`
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")
	var req publishRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body: %v", err)
		return
	}
	if len(req.Payload) == 0 {
		h.badRequest(w, "payload is required")
		return
	}

	id, err := h.deps.Messaging.Publish(r.Context(), channel, req.Payload, req.Sender)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.recordActivity(r.Context(), "message", "publish", &channel, envelope{"id": id})
	h.writeOK(w, envelope{"id": id})
}

func (h *Handler) handleMessageHistory(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")
	since := int64(0)
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.badRequest(w, "since must be an integer")
			return
		}
		since = parsed
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			h.badRequest(w, "limit must be an integer")
			return
		}
		limit = parsed
	}

	messages, err := h.deps.Messaging.Messages(r.Context(), channel, since, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, envelope{"messages": messages})
}

func (h *Handler) handleClearChannel(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")
	count, err := h.deps.Messaging.ClearChannel(r.Context(), channel)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.recordActivity(r.Context(), "message", "clear_channel", &channel, envelope{"cleared": count})
	h.writeOK(w, envelope{"cleared": count})
}

func (h *Handler) handleChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.deps.Messaging.Channels(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, envelope{"channels": channels})
}

// handleSubscribe pumps a channel's live publications to the client as
// `data: <json>\n\n` SSE frames, grounded on proxy/http_service.go's
// streamSSE (Flusher assertion, SSE headers, flush-per-chunk). A write
// that fails because the client disconnected ends the stream silently;
// any other write failure is logged as a warning.
func (h *Handler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")

	release, ok := h.sseLimiter.acquire(sourceHost(r))
	defer release()
	if !ok {
		h.writeError(w, kernelerr.New(kernelerr.Capacity, "too many concurrent SSE streams from this source"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, kernelerr.New(kernelerr.Fatal, "streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
		return
	}
	flusher.Flush()

	ctx := r.Context()
	messages, closed, unsubscribe := h.deps.Messaging.Subscribe(ctx, channel)
	defer unsubscribe()

	ticker := time.NewTicker(sseKeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			// Evicted as a slow consumer.
			return
		case <-ticker.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				if !netutil.IsExpectedCloseError(err) && h.logger != nil {
					h.logger.Warn("httpapi: SSE keep-alive write failed", "channel", channel, "error", err)
				}
				return
			}
			flusher.Flush()
		case msg := <-messages:
			encoded, err := json.Marshal(msg)
			if err != nil {
				if h.logger != nil {
					h.logger.Warn("httpapi: encoding SSE message", "error", err)
				}
				continue
			}
			if _, err := w.Write([]byte("data: ")); err == nil {
				_, err = w.Write(encoded)
			}
			if err == nil {
				_, err = w.Write([]byte("\n\n"))
			}
			if err != nil {
				if !netutil.IsExpectedCloseError(err) && h.logger != nil {
					h.logger.Warn("httpapi: SSE write failed", "channel", channel, "error", err)
				}
				return
			}
			flusher.Flush()
		}
	}
}
