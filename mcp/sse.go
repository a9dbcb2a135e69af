// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"fmt"
	"net/http"
	"sync"

	json "github.com/segmentio/encoding/json"
)

// sseWriter serializes JSON-RPC frames as server-sent events onto an HTTP
// response body. It is obtained once per streaming HTTP response. Write and
// End serialize on an internal mutex, so the writer may be shared across
// goroutines; End waits for an in-progress Write to finish.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu      sync.Mutex
	closed  bool
	onClose func()
}

// newSSEWriter wraps w as an SSE event sink, sending the standard
// text/event-stream headers. It returns an error if w does not support
// flushing, since without it the client would never observe any bytes.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{w: w, flusher: flusher}, nil
}

// OnClose registers a callback invoked exactly once when the writer is
// closed, either explicitly via End or because a Write to the underlying
// connection failed. The transport uses this to evict the writer from
// its writer map.
func (s *sseWriter) OnClose(f func()) {
	s.mu.Lock()
	alreadyClosed := s.closed
	if !alreadyClosed {
		s.onClose = f
	}
	s.mu.Unlock()
	if alreadyClosed {
		f()
	}
}

// Write frames message as one SSE "message" event, writing an "id:" line
// when eventID is non-empty. Only session-persisted events carry an id.
func (s *sseWriter) Write(message any, eventID string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sse writer is closed")
	}
	var buf []byte
	if eventID != "" {
		buf = append(buf, "id: "...)
		buf = append(buf, eventID...)
		buf = append(buf, '\n')
	}
	buf = append(buf, "event: message\ndata: "...)
	buf = append(buf, data...)
	buf = append(buf, '\n', '\n')
	if _, err := s.w.Write(buf); err != nil {
		s.closeLocked()
		return err
	}
	s.flusher.Flush()
	return nil
}

// End closes the writer without an error, signaling a clean end of stream.
func (s *sseWriter) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *sseWriter) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	if s.onClose != nil {
		s.onClose()
	}
}
