// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// nonFlushingWriter implements http.ResponseWriter but not http.Flusher.
type nonFlushingWriter struct {
	header http.Header
}

func (w *nonFlushingWriter) Header() http.Header        { return w.header }
func (w *nonFlushingWriter) Write(b []byte) (int, error) { return len(b), nil }
func (w *nonFlushingWriter) WriteHeader(int)             {}

func TestNewSSEWriterRequiresFlusher(t *testing.T) {
	w := &nonFlushingWriter{header: make(http.Header)}
	if _, err := newSSEWriter(w); err == nil {
		t.Fatal("expected error for a response writer without Flush support")
	}
}

func TestSSEWriterWriteFrameShape(t *testing.T) {
	rec := httptest.NewRecorder()
	sw, err := newSSEWriter(rec)
	if err != nil {
		t.Fatalf("newSSEWriter: %v", err)
	}
	if err := sw.Write(map[string]string{"hello": "world"}, "3#main"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "id: 3#main\n") {
		t.Errorf("body missing id line: %q", body)
	}
	if !strings.Contains(body, "event: message\n") {
		t.Errorf("body missing event line: %q", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Errorf("frame should end with a blank line: %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
}

func TestSSEWriterWriteWithoutEventIDOmitsIDLine(t *testing.T) {
	rec := httptest.NewRecorder()
	sw, err := newSSEWriter(rec)
	if err != nil {
		t.Fatalf("newSSEWriter: %v", err)
	}
	if err := sw.Write(map[string]string{"a": "b"}, ""); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if strings.Contains(rec.Body.String(), "id: ") {
		t.Errorf("body should not contain an id line: %q", rec.Body.String())
	}
}

func TestSSEWriterOnCloseFiresExactlyOnce(t *testing.T) {
	rec := httptest.NewRecorder()
	sw, err := newSSEWriter(rec)
	if err != nil {
		t.Fatalf("newSSEWriter: %v", err)
	}
	calls := 0
	sw.OnClose(func() { calls++ })
	sw.End()
	sw.End()
	if calls != 1 {
		t.Errorf("OnClose fired %d times, want 1", calls)
	}
}

func TestSSEWriterOnCloseRegisteredAfterCloseFiresImmediately(t *testing.T) {
	rec := httptest.NewRecorder()
	sw, err := newSSEWriter(rec)
	if err != nil {
		t.Fatalf("newSSEWriter: %v", err)
	}
	sw.End()

	calls := 0
	sw.OnClose(func() { calls++ })
	if calls != 1 {
		t.Fatalf("OnClose registered after End should fire immediately, got %d calls", calls)
	}
}

func TestSSEWriterWriteAfterCloseFails(t *testing.T) {
	rec := httptest.NewRecorder()
	sw, err := newSSEWriter(rec)
	if err != nil {
		t.Fatalf("newSSEWriter: %v", err)
	}
	sw.End()
	if err := sw.Write("x", ""); err == nil {
		t.Fatal("expected error writing to a closed sse writer")
	}
}
