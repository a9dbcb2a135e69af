// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	json "github.com/segmentio/encoding/json"
)

// DefaultMaxBodyBytes bounds the size of a POST body the transport will read
// before giving up with a 413.
const DefaultMaxBodyBytes int64 = 1_000_000

// StreamableHTTPOptions configures a [StreamableHTTPHandler].
type StreamableHTTPOptions struct {
	// Stateless disables session issuance: every request is dispatched
	// without a session id, GET and DELETE are rejected with 405, and
	// initialize never returns an MCP-Session-Id header.
	Stateless bool

	// MaxBodyBytes bounds POST bodies; 0 selects DefaultMaxBodyBytes, a
	// negative value disables the limit.
	MaxBodyBytes int64

	// AllowedHosts, if non-empty, restricts the Host header to this set.
	AllowedHosts []string
	// AllowedOrigins, if non-empty, restricts the Origin header to this set.
	AllowedOrigins []string
}

func (o *StreamableHTTPOptions) maxBodyBytes() int64 {
	if o == nil || o.MaxBodyBytes == 0 {
		return DefaultMaxBodyBytes
	}
	if o.MaxBodyBytes < 0 {
		return 0
	}
	return o.MaxBodyBytes
}

// StreamableHTTPHandler is an http.Handler implementing the streaming HTTP
// transport described by the package's design notes: a single endpoint that
// multiplexes single-shot JSON responses, per-request SSE streams, and a
// long-lived per-session SSE stream with resumable replay.
type StreamableHTTPHandler struct {
	dispatcher *Dispatcher
	sessions   SessionStore
	notifier   *NotificationSender
	opts       StreamableHTTPOptions

	mu                sync.Mutex
	sessionWriters    map[string]*sseWriter // sessionID -> GET stream
	perRequestWriters map[string]*sseWriter // sessionID+":"+requestID -> POST SSE stream
}

// NewStreamableHTTPHandler wires dispatcher to sessions via the streaming
// HTTP transport, binding a NotificationSender to the dispatcher so that
// ctx.Progress/Elicit/Sample calls route through this handler's writers.
func NewStreamableHTTPHandler(dispatcher *Dispatcher, sessions SessionStore, opts *StreamableHTTPOptions) *StreamableHTTPHandler {
	h := &StreamableHTTPHandler{
		dispatcher:        dispatcher,
		sessions:          sessions,
		sessionWriters:    make(map[string]*sseWriter),
		perRequestWriters: make(map[string]*sseWriter),
	}
	if opts != nil {
		h.opts = *opts
	}
	h.notifier = NewNotificationSender(sessions)
	dispatcher.BindNotifier(h.notifier)
	return h
}

func (h *StreamableHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkHostOrigin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		writeJSONRPCError(w, http.StatusMethodNotAllowed, nil, InvalidRequest(fmt.Sprintf("unsupported method %s", r.Method)))
	}
}

func (h *StreamableHTTPHandler) checkHostOrigin(w http.ResponseWriter, r *http.Request) bool {
	if len(h.opts.AllowedHosts) > 0 && !contains(h.opts.AllowedHosts, r.Host) {
		http.Error(w, "host not allowed", http.StatusForbidden)
		return false
	}
	if origin := r.Header.Get("Origin"); origin != "" && len(h.opts.AllowedOrigins) > 0 && !contains(h.opts.AllowedOrigins, origin) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func acceptsSSE(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	for _, part := range strings.Split(accept, ",") {
		if strings.HasSuffix(strings.TrimSpace(part), "text/event-stream") {
			return true
		}
	}
	return false
}

// handlePost implements the POST branch: parse, structural checks, protocol
// version enforcement, then either a per-request SSE stream or an inline
// JSON response.
func (h *StreamableHTTPHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := readLimitedBody(w, r, h.opts.maxBodyBytes())
	if err != nil {
		return
	}

	sessionID := r.Header.Get("MCP-Session-Id")
	if h.opts.Stateless {
		sessionID = ""
	}
	allowBatch := h.negotiatedAllowsBatch(sessionID)

	msgs, _, err := ParseBody(body, allowBatch)
	if err != nil {
		if err == errBatchNotSupported {
			writeJSONRPCError(w, http.StatusBadRequest, nil, InvalidRequest("Batch requests are not supported"))
			return
		}
		writeJSONRPCError(w, http.StatusBadRequest, nil, ParseError(err))
		return
	}

	// A client-sent response acknowledges a server-initiated request;
	// forward it to the pending adapter and return immediately.
	if len(msgs) == 1 && msgs[0].IsResponse() {
		h.forwardClientResponse(sessionID, msgs[0].Response)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	isInitialize := len(msgs) == 1 && msgs[0].IsRequest() && msgs[0].Request.Method == "initialize"
	if !isInitialize {
		if verr := h.checkProtocolVersion(sessionID, r); verr != nil {
			writeJSONRPCError(w, http.StatusBadRequest, nil, verr)
			return
		}
	}

	if len(msgs) == 1 && msgs[0].IsNotification() {
		if acceptsSSE(r) {
			writeJSONRPCError(w, http.StatusBadRequest, nil, InvalidRequest("notifications are not accepted on the SSE path"))
			return
		}
		h.dispatcher.Dispatch(r.Context(), sessionID, msgs[0])
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if !h.opts.Stateless && isInitialize {
		sessionID = h.sessions.GenerateSessionID()
	}

	if acceptsSSE(r) {
		h.servePerRequestStream(w, r, sessionID, msgs[0])
		return
	}

	h.serveInline(w, r, sessionID, isInitialize, msgs)
}

func (h *StreamableHTTPHandler) negotiatedAllowsBatch(sessionID string) bool {
	if h.sessions == nil || sessionID == "" {
		return true // no session yet: initialize itself is never batched
	}
	data, ok := h.sessions.Get(context.Background(), sessionID)
	if !ok {
		return true
	}
	return data.Meta.ProtocolVersion == string(ProtocolVersion20250326)
}

func (h *StreamableHTTPHandler) checkProtocolVersion(sessionID string, r *http.Request) *Error {
	if h.sessions == nil || sessionID == "" {
		return nil
	}
	data, ok := h.sessions.Get(r.Context(), sessionID)
	if !ok {
		return nil
	}
	got := r.Header.Get("MCP-Protocol-Version")
	want := data.Meta.ProtocolVersion
	if got == "" {
		if want == string(ProtocolVersion20250618) {
			return versionMismatchError(want, "")
		}
		return nil // tolerated on the older protocol version
	}
	if got != want {
		return versionMismatchError(want, got)
	}
	return nil
}

func (h *StreamableHTTPHandler) forwardClientResponse(sessionID string, resp *Response) {
	requestID := resp.ID.String()
	if resp.Error != nil {
		h.dispatcher.pending.RejectPending(sessionID, requestID, &WireError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data})
		return
	}
	h.dispatcher.pending.ResolvePending(sessionID, requestID, resp.Result)
}

// serveInline runs the dispatcher synchronously and writes a plain JSON
// response (or a batch array, when allowed).
func (h *StreamableHTTPHandler) serveInline(w http.ResponseWriter, r *http.Request, sessionID string, isInitialize bool, msgs []*Message) {
	responses := make([]*Response, 0, len(msgs))
	for _, m := range msgs {
		if resp := h.dispatcher.Dispatch(r.Context(), sessionID, m); resp != nil {
			responses = append(responses, resp)
		}
	}

	if len(responses) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if isInitialize && !h.opts.Stateless && sessionID != "" {
		w.Header().Set("MCP-Session-Id", sessionID)
	}
	w.Header().Set("Content-Type", "application/json")

	if len(msgs) > 1 {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(responses)
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(responses[0])
}

// servePerRequestStream opens an ephemeral SSE stream keyed by
// (sessionID, requestID), runs the dispatcher asynchronously, and writes
// progress/elicit/sample notifications plus the terminal response to it.
func (h *StreamableHTTPHandler) servePerRequestStream(w http.ResponseWriter, r *http.Request, sessionID string, msg *Message) {
	if !msg.IsRequest() {
		writeJSONRPCError(w, http.StatusBadRequest, nil, InvalidRequest("notifications are not accepted on the SSE path"))
		return
	}
	requestID := msg.Request.ID.String()
	key := perRequestKey(sessionID, requestID)

	h.mu.Lock()
	if _, exists := h.perRequestWriters[key]; exists {
		h.mu.Unlock()
		http.Error(w, "a stream already exists for this request", http.StatusConflict)
		return
	}
	writer, err := newSSEWriter(w)
	if err != nil {
		h.mu.Unlock()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.perRequestWriters[key] = writer
	h.mu.Unlock()

	unbind := h.notifier.BindPerRequestWriter(sessionID, requestID, writer)
	writer.OnClose(func() {
		unbind()
		h.mu.Lock()
		delete(h.perRequestWriters, key)
		h.mu.Unlock()
	})
	defer writer.End()

	if sessionID != "" {
		w.Header().Set("MCP-Session-Id", sessionID)
	}

	resp := h.dispatcher.Dispatch(r.Context(), sessionID, msg)
	if resp != nil {
		_ = writer.Write(resp, "")
	}
}

// handleGet opens the long-lived per-session SSE stream.
func (h *StreamableHTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	if h.opts.Stateless {
		http.Error(w, "GET is not supported in stateless mode", http.StatusMethodNotAllowed)
		return
	}
	if !acceptsSSE(r) {
		http.Error(w, "Accept must contain text/event-stream", http.StatusBadRequest)
		return
	}
	sessionID := r.Header.Get("MCP-Session-Id")
	if sessionID == "" || !h.sessions.Has(r.Context(), sessionID) {
		http.Error(w, "missing or unknown MCP-Session-Id", http.StatusBadRequest)
		return
	}
	if verr := h.checkProtocolVersion(sessionID, r); verr != nil {
		writeJSONRPCError(w, http.StatusBadRequest, nil, verr)
		return
	}

	h.mu.Lock()
	if _, exists := h.sessionWriters[sessionID]; exists {
		h.mu.Unlock()
		http.Error(w, "a session stream already exists", http.StatusConflict)
		return
	}
	writer, err := newSSEWriter(w)
	if err != nil {
		h.mu.Unlock()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.sessionWriters[sessionID] = writer
	h.mu.Unlock()

	unbindNotifier := h.notifier.BindSessionWriter(sessionID, writer)
	writer.OnClose(func() {
		unbindNotifier()
		h.mu.Lock()
		delete(h.sessionWriters, sessionID)
		h.mu.Unlock()
	})
	defer writer.End()

	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID != "" {
		err := h.sessions.Replay(r.Context(), sessionID, lastEventID, func(eventID string, message any) error {
			return writer.Write(message, eventID)
		})
		if err != nil {
			http.Error(w, fmt.Sprintf("replay failed: %v", err), http.StatusInternalServerError)
			return
		}
	} else {
		_ = writer.Write(map[string]string{"type": "connection", "status": "established"}, "")
	}

	<-r.Context().Done()
}

// handleDelete tears down a session and every stream rooted at it.
func (h *StreamableHTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if h.opts.Stateless {
		http.Error(w, "DELETE is not supported in stateless mode", http.StatusMethodNotAllowed)
		return
	}
	sessionID := r.Header.Get("MCP-Session-Id")
	if sessionID == "" {
		http.Error(w, "missing MCP-Session-Id", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	var toClose []*sseWriter
	if writer, ok := h.sessionWriters[sessionID]; ok {
		toClose = append(toClose, writer)
	}
	prefix := sessionID + ":"
	for key, writer := range h.perRequestWriters {
		if strings.HasPrefix(key, prefix) {
			toClose = append(toClose, writer)
		}
	}
	h.mu.Unlock()

	// writer.End() fires OnClose synchronously, and the close callbacks
	// registered in handleGet/servePerRequestStream re-acquire h.mu to
	// evict themselves from the maps above — so the writers must be
	// closed only after h.mu is released, not while holding it.
	for _, writer := range toClose {
		writer.End()
	}

	_ = h.sessions.Delete(r.Context(), sessionID)
	w.WriteHeader(http.StatusOK)
}

func readLimitedBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	var reader = r.Body
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		reader = r.Body
	}
	body, err := readAll(reader)
	if err != nil {
		if limit > 0 && isMaxBytesError(err) {
			w.Header().Set("Connection", "close")
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return nil, err
		}
		writeJSONRPCError(w, http.StatusBadRequest, nil, ParseError(err))
		return nil, err
	}
	return body, nil
}

func writeJSONRPCError(w http.ResponseWriter, status int, id *ID, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&Response{JSONRPC: "2.0", ID: id, Error: err.wire()})
}
