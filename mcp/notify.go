// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"sync"
)

// notificationWriter is anything that can accept one server-originated JSON
// frame. Both per-request and per-session SSE writers satisfy it.
type notificationWriter interface {
	Write(message any, eventID string) error
}

// NotificationTarget carries the routing hints that accompany a single
// notification: the session it belongs to, and, for progress/elicit/sample
// traffic generated while servicing a specific request, that request's id.
type NotificationTarget struct {
	SessionID        string
	RelatedRequestID string
}

// NotificationSender implements the four-tier routing policy described by
// the package's design notes: per-request delivery takes priority over
// session delivery, and only list-changed-style broadcasts may reach a
// client with no session at all.
//
// A transport constructs one NotificationSender bound to its own writer
// maps and session store, and hands it to the dispatcher so that handler
// calls to ctx.Progress/Elicit/Sample route correctly regardless of which
// HTTP connection they end up delivered over.
type NotificationSender struct {
	store SessionStore

	mu                sync.Mutex
	perRequestWriters map[string]notificationWriter // key: sessionID+":"+requestID
	statelessWriters  map[string]notificationWriter // key: requestID, for sessionless per-request streams
	perSessionWriters map[string]notificationWriter // key: sessionID
}

// NewNotificationSender returns a NotificationSender backed by store.
func NewNotificationSender(store SessionStore) *NotificationSender {
	return &NotificationSender{
		store:             store,
		perRequestWriters: make(map[string]notificationWriter),
		statelessWriters:  make(map[string]notificationWriter),
		perSessionWriters: make(map[string]notificationWriter),
	}
}

func perRequestKey(sessionID, requestID string) string { return sessionID + ":" + requestID }

// BindPerRequestWriter attaches w as the target for notifications related to
// (sessionID, requestID). unbind must be called when the stream closes.
func (n *NotificationSender) BindPerRequestWriter(sessionID, requestID string, w notificationWriter) (unbind func()) {
	key := perRequestKey(sessionID, requestID)
	n.mu.Lock()
	if sessionID == "" {
		n.statelessWriters[requestID] = w
	} else {
		n.perRequestWriters[key] = w
	}
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		if sessionID == "" {
			delete(n.statelessWriters, requestID)
		} else {
			delete(n.perRequestWriters, key)
		}
		n.mu.Unlock()
	}
}

// BindSessionWriter attaches w as the session's long-lived GET stream.
func (n *NotificationSender) BindSessionWriter(sessionID string, w notificationWriter) (unbind func()) {
	n.mu.Lock()
	n.perSessionWriters[sessionID] = w
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		delete(n.perSessionWriters, sessionID)
		n.mu.Unlock()
	}
}

// isListChanged reports whether method is one of the broadcastable
// list-changed notifications, the only kind allowed to reach every session
// when no session context is available.
func isListChanged(method string) bool {
	switch method {
	case "notifications/tools/list_changed",
		"notifications/prompts/list_changed",
		"notifications/resources/list_changed":
		return true
	default:
		return false
	}
}

// Send routes a single notification per the four-tier policy:
//
//  1. a per-request writer bound to (sessionID, relatedRequestID);
//  2. else a stateless per-request writer bound to relatedRequestID alone;
//  3. else, if sessionID is set, persistence to the session store plus
//     delivery to the session's GET writer if one is attached;
//  4. else, for list-changed notifications only, broadcast to every
//     attached session writer; anything else is discarded.
func (n *NotificationSender) Send(ctx context.Context, target NotificationTarget, method string, params any) error {
	message := struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{JSONRPC: "2.0", Method: method, Params: params}

	if target.RelatedRequestID != "" {
		n.mu.Lock()
		w, ok := n.perRequestWriters[perRequestKey(target.SessionID, target.RelatedRequestID)]
		if !ok && target.SessionID == "" {
			w, ok = n.statelessWriters[target.RelatedRequestID]
		}
		n.mu.Unlock()
		if ok {
			return w.Write(message, "")
		}
	}

	if target.SessionID != "" {
		eventID, ok := n.store.AppendEvent(ctx, target.SessionID, "session", message)
		if !ok {
			return nil // session gone; nothing to deliver
		}
		n.mu.Lock()
		w, attached := n.perSessionWriters[target.SessionID]
		n.mu.Unlock()
		if attached {
			return w.Write(message, eventID)
		}
		return nil
	}

	if isListChanged(method) {
		n.mu.Lock()
		writers := make([]notificationWriter, 0, len(n.perSessionWriters))
		for _, w := range n.perSessionWriters {
			writers = append(writers, w)
		}
		n.mu.Unlock()
		for _, w := range writers {
			_ = w.Write(message, "")
		}
	}
	return nil
}
