// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"net/http"
	"strconv"

	"github.com/curiositech/port-daddy/internal/store"
)

func (h *Handler) handleListActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ActivityFilter{
		Type:    q.Get("type"),
		AgentID: q.Get("agent_id"),
	}
	if v := q.Get("since"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.badRequest(w, "since must be an integer")
			return
		}
		filter.Since = parsed
	}
	if v := q.Get("until"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.badRequest(w, "until must be an integer")
			return
		}
		filter.Until = parsed
	}
	if v := q.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			h.badRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = parsed
	}
	if v := q.Get("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			h.badRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = parsed
	}

	entries, err := h.deps.Activity.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, envelope{"entries": entries})
}
