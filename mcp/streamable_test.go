// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestHandler() (*StreamableHTTPHandler, *Dispatcher) {
	sessions := NewMemorySessionStore(0)
	d := NewDispatcher(&Implementation{Name: "test", Version: "0.0.0"}, sessions, NewMemoryClientRequestAdapter())
	h := NewStreamableHTTPHandler(d, sessions, &StreamableHTTPOptions{})
	return h, d
}

func doPost(h http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStreamableInitializeIssuesSessionID(t *testing.T) {
	h, _ := newTestHandler()
	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`
	rec := doPost(h, body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if rec.Header().Get("MCP-Session-Id") == "" {
		t.Fatal("initialize response is missing MCP-Session-Id")
	}
}

func TestStreamableStatelessSkipsSessionID(t *testing.T) {
	sessions := NewMemorySessionStore(0)
	d := NewDispatcher(&Implementation{Name: "test", Version: "0.0.0"}, sessions, NewMemoryClientRequestAdapter())
	h := NewStreamableHTTPHandler(d, sessions, &StreamableHTTPOptions{Stateless: true})
	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`
	rec := doPost(h, body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Header().Get("MCP-Session-Id") != "" {
		t.Fatal("stateless mode should never issue MCP-Session-Id")
	}
}

func TestStreamableNotificationGets202(t *testing.T) {
	h, _ := newTestHandler()
	rec := doPost(h, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
}

func TestStreamableClientResponseForwardGets204(t *testing.T) {
	h, d := newTestHandler()
	ch, err := d.pending.CreatePending(context.Background(), "", "srv-1", 0)
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	rec := doPost(h, `{"jsonrpc":"2.0","id":"srv-1","result":{"ok":true}}`, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	select {
	case outcome := <-ch:
		if outcome.Err != nil {
			t.Fatalf("outcome.Err = %v", outcome.Err)
		}
	default:
		t.Fatal("forwarded client response was not delivered to the pending waiter")
	}
}

func TestStreamableParseErrorGets400(t *testing.T) {
	h, _ := newTestHandler()
	rec := doPost(h, `not json`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStreamableMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodPatch, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestStreamableGetRequiresKnownSession(t *testing.T) {
	h, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("MCP-Session-Id", "unknown")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStreamableGetRejectedInStatelessMode(t *testing.T) {
	sessions := NewMemorySessionStore(0)
	d := NewDispatcher(&Implementation{Name: "test", Version: "0.0.0"}, sessions, NewMemoryClientRequestAdapter())
	h := NewStreamableHTTPHandler(d, sessions, &StreamableHTTPOptions{Stateless: true})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestStreamableDeleteTearsDownSession(t *testing.T) {
	h, _ := newTestHandler()
	initBody := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`
	rec := doPost(h, initBody, nil)
	sessionID := rec.Header().Get("MCP-Session-Id")
	if sessionID == "" {
		t.Fatal("no session id issued")
	}

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req.Header.Set("MCP-Session-Id", sessionID)
	delRec := httptest.NewRecorder()
	h.ServeHTTP(delRec, req)
	if delRec.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d, want %d", delRec.Code, http.StatusOK)
	}
	if h.sessions.Has(req.Context(), sessionID) {
		t.Fatal("session should be gone after DELETE")
	}
}

// TestStreamableDeleteWithLiveGetStreamDoesNotDeadlock guards against
// handleDelete calling writer.End() (which synchronously fires OnClose,
// re-entering h.mu) while still holding h.mu.
func TestStreamableDeleteWithLiveGetStreamDoesNotDeadlock(t *testing.T) {
	h, _ := newTestHandler()
	initBody := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`
	rec := doPost(h, initBody, nil)
	sessionID := rec.Header().Get("MCP-Session-Id")
	if sessionID == "" {
		t.Fatal("no session id issued")
	}

	ts := httptest.NewServer(h)
	defer ts.Close()

	getReq, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	getReq.Header.Set("Accept", "text/event-stream")
	getReq.Header.Set("MCP-Session-Id", sessionID)
	getResp, err := http.DefaultClient.Do(getReq)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer getResp.Body.Close()

	// Wait for the GET handler to register its writer before tearing the
	// session down, so DELETE actually exercises the live-writer path.
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		_, registered := h.sessionWriters[sessionID]
		h.mu.Unlock()
		if registered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("GET stream never registered its writer")
		}
		time.Sleep(time.Millisecond)
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/", nil)
	delReq.Header.Set("MCP-Session-Id", sessionID)
	delRec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(delRec, delReq)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("DELETE deadlocked with a live GET stream registered")
	}
	if delRec.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d, want %d", delRec.Code, http.StatusOK)
	}
}

func TestStreamableBatchRejectedOnNewerProtocol(t *testing.T) {
	h, d := newTestHandler()
	sessionID := "sess-batch"
	d.sessions.Create(context.Background(), sessionID, SessionMeta{ProtocolVersion: string(ProtocolVersion20250618)})

	batch := `[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","id":2,"method":"ping"}]`
	rec := doPost(h, batch, map[string]string{"MCP-Session-Id": sessionID, "MCP-Protocol-Version": string(ProtocolVersion20250618)})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d for a batch under the 2025-06-18 session", rec.Code, http.StatusBadRequest)
	}
}

func TestStreamableBatchAllowedOnOlderProtocol(t *testing.T) {
	h, d := newTestHandler()
	sessionID := "sess-batch-old"
	d.sessions.Create(context.Background(), sessionID, SessionMeta{ProtocolVersion: string(ProtocolVersion20250326)})

	batch := `[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","id":2,"method":"ping"}]`
	rec := doPost(h, batch, map[string]string{"MCP-Session-Id": sessionID, "MCP-Protocol-Version": string(ProtocolVersion20250326)})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var results []Response
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("unmarshal batch response: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
}

func TestStreamableProtocolVersionMismatchRejected(t *testing.T) {
	h, d := newTestHandler()
	sessionID := "sess-mismatch"
	d.sessions.Create(context.Background(), sessionID, SessionMeta{ProtocolVersion: string(ProtocolVersion20250618)})

	rec := doPost(h, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, map[string]string{
		"MCP-Session-Id":       sessionID,
		"MCP-Protocol-Version": string(ProtocolVersion20250326),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStreamableHostAllowlistRejectsUnknownHost(t *testing.T) {
	sessions := NewMemorySessionStore(0)
	d := NewDispatcher(&Implementation{Name: "test", Version: "0.0.0"}, sessions, NewMemoryClientRequestAdapter())
	h := NewStreamableHTTPHandler(d, sessions, &StreamableHTTPOptions{AllowedHosts: []string{"good.example"}})
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Host = "evil.example"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestStreamableBodyTooLargeRejected(t *testing.T) {
	sessions := NewMemorySessionStore(0)
	d := NewDispatcher(&Implementation{Name: "test", Version: "0.0.0"}, sessions, NewMemoryClientRequestAdapter())
	h := NewStreamableHTTPHandler(d, sessions, &StreamableHTTPOptions{MaxBodyBytes: 8})
	rec := doPost(h, `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"padding":"well beyond eight bytes"}}`, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestStreamablePingRoundTrip(t *testing.T) {
	h, d := newTestHandler()
	sessionID := "sess-ping"
	d.sessions.Create(context.Background(), sessionID, SessionMeta{ProtocolVersion: string(ProtocolVersion20250326)})
	rec := doPost(h, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, map[string]string{"MCP-Session-Id": sessionID})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}
