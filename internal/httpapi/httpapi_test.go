// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/curiositech/port-daddy/internal/activity"
	"github.com/curiositech/port-daddy/internal/agents"
	"github.com/curiositech/port-daddy/internal/changelog"
	"github.com/curiositech/port-daddy/internal/kernelerr"
	"github.com/curiositech/port-daddy/internal/locks"
	"github.com/curiositech/port-daddy/internal/messaging"
	"github.com/curiositech/port-daddy/internal/ports"
	"github.com/curiositech/port-daddy/internal/procutil"
	"github.com/curiositech/port-daddy/internal/salvage"
	"github.com/curiositech/port-daddy/internal/sessions"
	"github.com/curiositech/port-daddy/internal/store"
	"github.com/curiositech/port-daddy/lib/clock"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portd.db")
	st, err := store.Open(store.Config{Path: path, PoolSize: 4})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clk := clock.Fake(time.Unix(1700000000, 0))
	scanner := procutil.NewListeningPortScanner(clk, 0)
	act := activity.New(st, clk, activity.Config{}, nil)

	deps := Deps{
		Ports:     ports.New(st, clk, scanner, ports.Config{RangeMin: 21000, RangeMax: 21010, ClaimRetries: 5}, nil),
		Locks:     locks.New(st, clk, nil),
		Messaging: messaging.New(st, clk, messaging.Config{}, nil),
		Agents:    agents.New(st, clk, agents.Config{}, nil),
		Sessions:  sessions.New(st, clk, nil),
		Salvage:   salvage.New(st, clk, salvage.Config{}, nil),
		Activity:  act,
		Changelog: changelog.New(st, clk, nil),
	}
	return New(deps, Config{Version: "test"}, nil)
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return out
}

func TestLockAcquireConflictReturns409(t *testing.T) {
	h := newTestHandler(t)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	first := postJSON(t, srv, "/locks/deploy", map[string]any{"owner": "agent-a"})
	if first.StatusCode != http.StatusOK {
		t.Fatalf("expected first acquire to succeed, got %d", first.StatusCode)
	}
	first.Body.Close()

	second := postJSON(t, srv, "/locks/deploy", map[string]any{"owner": "agent-b"})
	body := decodeBody(t, second)
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on contended lock acquire, got %d (%v)", second.StatusCode, body)
	}
	detail, ok := body["detail"].(map[string]any)
	if !ok || detail["holder"] != "agent-a" {
		t.Fatalf("expected holder detail naming agent-a, got %+v", body)
	}
}

func TestLockAcquireRecordsActivity(t *testing.T) {
	h := newTestHandler(t)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	resp := postJSON(t, srv, "/locks/deploy", map[string]any{"owner": "agent-a"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected acquire to succeed, got %d", resp.StatusCode)
	}

	entries, err := h.deps.Activity.List(context.Background(), store.ActivityFilter{})
	if err != nil {
		t.Fatalf("Activity.List: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Type == "lock" && e.Action == "acquire" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an activity row for the lock acquire, got %+v", entries)
	}
}

func TestSessionEndIsIdempotentOverHTTP(t *testing.T) {
	h := newTestHandler(t)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	started := postJSON(t, srv, "/sessions", map[string]any{})
	startBody := decodeBody(t, started)
	if started.StatusCode != http.StatusOK {
		t.Fatalf("expected session start to succeed, got %d", started.StatusCode)
	}
	sessionID, _ := startBody["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("expected a session id in %+v", startBody)
	}

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/sessions/"+sessionID, jsonBody(t, map[string]any{"status": "completed"}))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	first, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("first end: %v", err)
	}
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("expected first end to succeed, got %d", first.StatusCode)
	}

	req2, err := http.NewRequest(http.MethodPut, srv.URL+"/sessions/"+sessionID, jsonBody(t, map[string]any{"status": "completed"}))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	second, err := srv.Client().Do(req2)
	if err != nil {
		t.Fatalf("second end: %v", err)
	}
	second.Body.Close()
	if second.StatusCode != http.StatusOK {
		t.Fatalf("expected re-ending with the same terminal status to be a no-op, got %d", second.StatusCode)
	}
}

func TestWriteErrorSurfacesRetryableDetailForTransient(t *testing.T) {
	h := newTestHandler(t)
	w := httptest.NewRecorder()
	h.writeError(w, kernelerr.New(kernelerr.Transient, "store unavailable"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected Transient errors to map to 500, got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	detail, ok := body["detail"].(map[string]any)
	if !ok || detail["retryable"] != true {
		t.Fatalf("expected a retryable detail flag, got %+v", body)
	}
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	encoded, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(encoded)
}
