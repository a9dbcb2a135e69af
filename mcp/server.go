// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"net/http"

	"github.com/google/jsonschema-go/jsonschema"
)

// ServerOptions configures a [Server] beyond its required Implementation.
type ServerOptions struct {
	Instructions string

	// SessionStore backs session metadata and replay buffers. A nil value
	// selects [NewMemorySessionStore] with [DefaultMaxEventBufferSize].
	SessionStore SessionStore

	// ClientRequestAdapter backs elicit/sample correlation. A nil value
	// selects [NewMemoryClientRequestAdapter].
	ClientRequestAdapter ClientRequestAdapter

	HTTPOptions StreamableHTTPOptions
}

// Server is the library's façade: it owns a [Dispatcher] and exposes
// registration methods plus an [http.Handler] once [Server.Bind] is called.
// Its zero responsibility beyond wiring is deliberate — the interesting
// behavior lives in Dispatcher, StreamableHTTPHandler, SessionStore, and
// ClientRequestAdapter, which remain independently usable.
type Server struct {
	dispatcher *Dispatcher
	sessions   SessionStore
	pending    ClientRequestAdapter
	httpOpts   StreamableHTTPOptions

	handler *StreamableHTTPHandler
}

// NewServer constructs a Server advertising info, applying opts if
// provided.
func NewServer(info *Implementation, opts *ServerOptions) *Server {
	var o ServerOptions
	if opts != nil {
		o = *opts
	}
	if o.SessionStore == nil {
		o.SessionStore = NewMemorySessionStore(DefaultMaxEventBufferSize)
	}
	if o.ClientRequestAdapter == nil {
		o.ClientRequestAdapter = NewMemoryClientRequestAdapter()
	}

	d := NewDispatcher(info, o.SessionStore, o.ClientRequestAdapter)
	d.SetInstructions(o.Instructions)

	return &Server{
		dispatcher: d,
		sessions:   o.SessionStore,
		pending:    o.ClientRequestAdapter,
		httpOpts:   o.HTTPOptions,
	}
}

// Use registers a middleware, in call order.
func (s *Server) Use(mw Middleware) { s.dispatcher.Use(mw) }

// AddTool registers a tool backed by a plain JSON Schema (or nil for
// "{type: object}"). See [Dispatcher.AddTool].
func (s *Server) AddTool(tool *Tool, inputSchema, outputSchema *jsonschema.Schema, handler ToolHandler) {
	s.dispatcher.AddTool(tool, inputSchema, outputSchema, handler)
}

// AddPrompt registers a prompt.
func (s *Server) AddPrompt(prompt *Prompt, handler PromptHandler) {
	s.dispatcher.AddPrompt(prompt, handler)
}

// AddResource registers a static resource.
func (s *Server) AddResource(resource *Resource, reader ResourceReader) {
	s.dispatcher.AddResource(resource, reader)
}

// AddResourceTemplate registers a URI-template-backed resource.
func (s *Server) AddResourceTemplate(template *ResourceTemplate, validators map[string]VariableValidator, reader ResourceReader) error {
	return s.dispatcher.AddResourceTemplate(template, validators, reader)
}

// LogMessage emits a notifications/message to sessionID's session stream,
// gated by that session's logging/setLevel threshold.
func (s *Server) LogMessage(ctx context.Context, sessionID string, level LoggingLevel, logger string, data any) error {
	return s.dispatcher.LogMessage(ctx, sessionID, level, logger, data)
}

// Dispatcher exposes the underlying dispatcher for advanced configuration
// (e.g. installing auth or rate-limit middleware that needs to run before
// registration-dependent middleware).
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Bind finalizes registration and returns the http.Handler serving the
// streaming HTTP transport at a single endpoint path. Calling Bind more
// than once returns independent handlers sharing the same dispatcher and
// session store, which is almost never what a caller wants; construct one
// Server per endpoint.
func (s *Server) Bind() http.Handler {
	s.handler = NewStreamableHTTPHandler(s.dispatcher, s.sessions, &s.httpOpts)
	return s.handler
}
