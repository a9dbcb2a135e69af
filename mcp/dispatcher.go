// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
)

// Middleware observes or short-circuits a single dispatch. It must call next
// to continue the chain; if it returns without calling next, the context's
// Response or Err must already be set, or the dispatcher reports
// CodeInternalError "No response generated" for the request.
type Middleware func(ctx *RequestContext, next func())

// toolEntry is a registered tool together with its resolved schemas.
type toolEntry struct {
	tool         *Tool
	handler      ToolHandler
	inputSchema  *jsonschema.Schema
	outputSchema *jsonschema.Schema
}

type promptEntry struct {
	prompt  *Prompt
	handler PromptHandler
}

type resourceEntry struct {
	resource *Resource
	reader   ResourceReader
}

type resourceTemplateEntry struct {
	template   *ResourceTemplate
	compiled   *compiledURITemplate
	validators map[string]VariableValidator
	reader     ResourceReader
}

// Dispatcher validates JSON-RPC frames, runs the middleware chain, and
// invokes the registered tool/prompt/resource handler. It owns every method
// registry; the transport owns sessions, writers, and HTTP concerns.
type Dispatcher struct {
	serverInfo   *Implementation
	instructions string

	schema  *SchemaAdapter
	pending ClientRequestAdapter

	// notifier is injected by the transport at bind time, after which
	// handlers may call ctx.Progress/Elicit/Sample.
	notifier atomic.Pointer[NotificationSender]

	sessions SessionStore

	mu                 sync.RWMutex
	middlewares        []Middleware
	tools              map[string]*toolEntry
	toolOrder          []string
	prompts            map[string]*promptEntry
	promptOrder        []string
	resources          map[string]*resourceEntry
	resourceOrder      []string
	resourceTemplates  []*resourceTemplateEntry

	reqCounter atomic.Uint64

	logLevels sync.Map // sessionID -> LoggingLevel
}

// NewDispatcher returns an empty Dispatcher. sessions and pending back the
// elicit/sample and capability-gated helpers exposed on RequestContext.
func NewDispatcher(info *Implementation, sessions SessionStore, pending ClientRequestAdapter) *Dispatcher {
	return &Dispatcher{
		serverInfo: info,
		schema:     NewSchemaAdapter(),
		pending:    pending,
		sessions:   sessions,
		tools:      make(map[string]*toolEntry),
		prompts:    make(map[string]*promptEntry),
		resources:  make(map[string]*resourceEntry),
	}
}

// SetInstructions sets the free-text instructions returned from initialize.
func (d *Dispatcher) SetInstructions(s string) { d.instructions = s }

// BindNotifier installs the transport's NotificationSender. Until this is
// called, ctx.Progress/Elicit/Sample are no-ops that return an error.
func (d *Dispatcher) BindNotifier(n *NotificationSender) { d.notifier.Store(n) }

// Use appends a middleware to the chain, in the order requests will see it.
func (d *Dispatcher) Use(mw Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middlewares = append(d.middlewares, mw)
}

// AddTool registers a tool. Registering a name a second time replaces the
// prior entry but preserves its position for listing order.
func (d *Dispatcher) AddTool(tool *Tool, inputSchema, outputSchema *jsonschema.Schema, handler ToolHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.tools[tool.Name]; !exists {
		d.toolOrder = append(d.toolOrder, tool.Name)
	}
	if tool.InputSchema == nil && inputSchema == nil {
		t := *tool
		t.InputSchema = map[string]any{"type": "object"}
		tool = &t
	}
	d.tools[tool.Name] = &toolEntry{tool: tool, handler: handler, inputSchema: inputSchema, outputSchema: outputSchema}
}

// AddPrompt registers a prompt.
func (d *Dispatcher) AddPrompt(prompt *Prompt, handler PromptHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.prompts[prompt.Name]; !exists {
		d.promptOrder = append(d.promptOrder, prompt.Name)
	}
	d.prompts[prompt.Name] = &promptEntry{prompt: prompt, handler: handler}
}

// AddResource registers a static resource at a fixed URI.
func (d *Dispatcher) AddResource(resource *Resource, reader ResourceReader) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.resources[resource.URI]; !exists {
		d.resourceOrder = append(d.resourceOrder, resource.URI)
	}
	d.resources[resource.URI] = &resourceEntry{resource: resource, reader: reader}
}

// AddResourceTemplate registers a URI-template-backed resource. Templates
// are matched in registration order; the first match wins.
func (d *Dispatcher) AddResourceTemplate(template *ResourceTemplate, validators map[string]VariableValidator, reader ResourceReader) error {
	compiled, err := compileURITemplate(template.URITemplate)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resourceTemplates = append(d.resourceTemplates, &resourceTemplateEntry{
		template: template, compiled: compiled, validators: validators, reader: reader,
	})
	return nil
}

// capabilities derives ServerCapabilities from registry contents, never from
// anything the client sent.
func (d *Dispatcher) capabilities() *ServerCapabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	caps := &ServerCapabilities{Logging: &LoggingCapabilities{}}
	if len(d.tools) > 0 {
		caps.Tools = &ToolCapabilities{ListChanged: true}
	}
	if len(d.prompts) > 0 {
		caps.Prompts = &PromptCapabilities{ListChanged: true}
	}
	if len(d.resources) > 0 || len(d.resourceTemplates) > 0 {
		caps.Resources = &ResourceCapabilities{ListChanged: true}
	}
	return caps
}

// nextRequestID allocates an id for a server-initiated request (elicit,
// sample), distinct from the client-assigned ids on incoming requests.
func (d *Dispatcher) nextRequestID() string {
	n := d.reqCounter.Add(1)
	return fmt.Sprintf("srv-%d-%s", n, uuid.NewString())
}

// RequestContext is the per-dispatch context handed to middleware and
// handlers. Its exported fields are mutable by middleware; its methods are
// the handler-facing surface described by the package's design notes.
type RequestContext struct {
	Context context.Context

	// Raw identifies the inbound frame.
	Method    string
	RequestID *ID // nil for notifications
	Params    json.RawMessage

	// SessionID is "" for stateless transports.
	SessionID string
	session   *SessionMeta

	// State and Env are free for middleware to read and write; State
	// typically carries per-request data, Env longer-lived configuration.
	State map[string]any
	Env   map[string]any

	// AuthInfo is forwarded by the host transport; its concrete type is a
	// contract between the transport and the application's middleware.
	AuthInfo any

	// Response and Err are set by the terminal handler (or by a
	// short-circuiting middleware). Exactly one should be non-nil once the
	// chain completes for a request; both remain nil for a notification
	// that nothing wants to answer.
	Response any
	Err      *Error

	d *Dispatcher
}

// Supports reports whether the originating client declared capability
// during initialize.
func (c *RequestContext) Supports(capability string) bool {
	if c.session == nil {
		return false
	}
	return c.session.ClientCapabilities.Supports(capability)
}

// ClientInfo returns the originating client's declared implementation info,
// or nil outside a session.
func (c *RequestContext) ClientInfo() *Implementation {
	if c.session == nil {
		return nil
	}
	return c.session.ClientInfo
}

// Validate checks input against schema using the dispatcher's shared
// resolution cache.
func (c *RequestContext) Validate(schema *jsonschema.Schema, input json.RawMessage) (map[string]any, error) {
	return c.d.schema.ValidateArguments(schema, input)
}

// Progress emits a notifications/progress message correlated to this
// request. It is a no-op (returning nil) if the request has no progress
// token, and an error if the transport hasn't bound a notifier yet.
func (c *RequestContext) Progress(progress, total float64, message string) error {
	token := c.progressToken()
	if token == nil {
		return nil
	}
	n := c.d.notifier.Load()
	if n == nil {
		return fmt.Errorf("mcp: no notification sender bound")
	}
	target := NotificationTarget{SessionID: c.SessionID, RelatedRequestID: c.RequestID.String()}
	params := &ProgressNotificationParams{ProgressToken: token, Progress: progress, Total: total, Message: message}
	return n.Send(c.Context, target, "notifications/progress", params)
}

func (c *RequestContext) progressToken() any {
	var wrapper struct {
		Meta Meta `json:"_meta"`
	}
	if err := json.Unmarshal(c.Params, &wrapper); err != nil {
		return nil
	}
	return wrapper.Meta[progressTokenKey]
}

// Elicit issues a server-initiated elicitation/create request to the client
// and blocks until the client answers, the timeout elapses, or ctx is
// cancelled. It fails fast with InvalidParams if the session never declared
// the elicitation capability, before any request is sent.
func (c *RequestContext) Elicit(params *ElicitParams, timeout time.Duration) (*ElicitResult, error) {
	if !c.Supports("elicitation") {
		return nil, InvalidParams("client does not support elicitation", nil)
	}
	var result ElicitResult
	if err := c.sendClientRequest("elicitation/create", params, timeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Sample issues a sampling/createMessage request to the client.
func (c *RequestContext) Sample(params *CreateMessageParams, timeout time.Duration) (*CreateMessageResult, error) {
	if !c.Supports("sampling") {
		return nil, InvalidParams("client does not support sampling", nil)
	}
	var result CreateMessageResult
	if err := c.sendClientRequest("sampling/createMessage", params, timeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// sendClientRequest implements the shared elicit/sample mechanics: allocate
// a fresh request id, register a pending entry, push the request frame
// through the routing policy, and wait for the correlated terminal event.
func (c *RequestContext) sendClientRequest(method string, params any, timeout time.Duration, out any) error {
	n := c.d.notifier.Load()
	if n == nil {
		return fmt.Errorf("mcp: no notification sender bound")
	}
	if timeout <= 0 {
		timeout = DefaultClientRequestTimeout
	}
	reqID := c.d.nextRequestID()

	outcomeCh, err := c.d.pending.CreatePending(c.Context, c.SessionID, reqID, timeout)
	if err != nil {
		return InternalError(err)
	}

	frame := struct {
		JSONRPC string `json:"jsonrpc"`
		ID      string `json:"id"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{JSONRPC: "2.0", ID: reqID, Method: method, Params: params}

	target := NotificationTarget{SessionID: c.SessionID, RelatedRequestID: c.RequestID.String()}
	if err := n.Send(c.Context, target, frame.Method, frame); err != nil {
		return InternalError(err)
	}

	select {
	case outcome := <-outcomeCh:
		if outcome.Err != nil {
			return outcome.Err
		}
		if out != nil && len(outcome.Result) > 0 {
			if err := json.Unmarshal(outcome.Result, out); err != nil {
				return InternalError(err)
			}
		}
		return nil
	case <-c.Context.Done():
		return c.Context.Err()
	}
}

// Dispatch validates and routes a single parsed frame. It returns nil for a
// notification (callers must still have handled transport-level 202/400
// status themselves based on IsNotification/parse errors) and a non-nil
// *Response for a request.
func (d *Dispatcher) Dispatch(goCtx context.Context, sessionID string, msg *Message) *Response {
	switch {
	case msg.IsNotification():
		d.dispatchNotification(goCtx, sessionID, msg.Notification)
		return nil
	case msg.IsRequest():
		return d.dispatchRequest(goCtx, sessionID, msg.Request)
	default:
		return nil
	}
}

func (d *Dispatcher) dispatchNotification(goCtx context.Context, sessionID string, note *Notification) {
	rc := &RequestContext{
		Context:   goCtx,
		Method:    note.Method,
		RequestID: nil,
		Params:    note.Params,
		SessionID: sessionID,
		State:     make(map[string]any),
		Env:       make(map[string]any),
		d:         d,
	}
	d.attachSession(rc)
	d.runChain(rc, func() {
		// Notification handler errors are swallowed by contract; there is
		// never a response to send.
		_ = d.routeNotification(rc)
	})
}

func (d *Dispatcher) dispatchRequest(goCtx context.Context, sessionID string, req *Request) *Response {
	rc := &RequestContext{
		Context:   goCtx,
		Method:    req.Method,
		RequestID: req.ID,
		Params:    req.Params,
		SessionID: sessionID,
		State:     make(map[string]any),
		Env:       make(map[string]any),
		d:         d,
	}
	d.attachSession(rc)

	d.runChain(rc, func() {
		result, err := d.routeRequest(rc)
		if err != nil {
			rc.Err = asError(err)
			return
		}
		rc.Response = result
	})

	if rc.Response == nil && rc.Err == nil {
		rc.Err = &Error{Code: CodeInternalError, Message: "No response generated"}
	}

	resp := &Response{JSONRPC: "2.0", ID: req.ID}
	if rc.Err != nil {
		resp.Error = rc.Err.wire()
		return resp
	}
	data, err := json.Marshal(rc.Response)
	if err != nil {
		resp.Error = InternalError(err).wire()
		return resp
	}
	resp.Result = data
	return resp
}

func (d *Dispatcher) attachSession(rc *RequestContext) {
	if rc.SessionID == "" || d.sessions == nil {
		return
	}
	if data, ok := d.sessions.Get(rc.Context, rc.SessionID); ok {
		rc.session = &data.Meta
	}
}

// runChain executes the registered middleware in order, finishing with
// terminal.
func (d *Dispatcher) runChain(rc *RequestContext, terminal func()) {
	d.mu.RLock()
	chain := make([]Middleware, len(d.middlewares))
	copy(chain, d.middlewares)
	d.mu.RUnlock()

	var run func(i int)
	run = func(i int) {
		if i >= len(chain) {
			terminal()
			return
		}
		chain[i](rc, func() { run(i + 1) })
	}
	run(0)
}

func (d *Dispatcher) routeNotification(rc *RequestContext) error {
	switch rc.Method {
	case "notifications/initialized", "notifications/cancelled",
		"notifications/progress", "notifications/roots/list_changed":
		return nil
	default:
		return nil
	}
}

func (d *Dispatcher) routeRequest(rc *RequestContext) (any, error) {
	switch rc.Method {
	case "initialize":
		return d.handleInitialize(rc)
	case "ping":
		return struct{}{}, nil
	case "logging/setLevel":
		return d.handleSetLoggingLevel(rc)
	case "tools/list":
		return d.handleToolsList(rc)
	case "tools/call":
		return d.handleToolsCall(rc)
	case "prompts/list":
		return d.handlePromptsList(rc)
	case "prompts/get":
		return d.handlePromptsGet(rc)
	case "resources/list":
		return d.handleResourcesList(rc)
	case "resources/templates/list":
		return d.handleResourceTemplatesList(rc)
	case "resources/read":
		return d.handleResourcesRead(rc)
	case "resources/subscribe", "resources/unsubscribe":
		return nil, &Error{Code: CodeMethodNotFound, Message: "not implemented"}
	default:
		return nil, MethodNotFound(rc.Method)
	}
}

func (d *Dispatcher) handleInitialize(rc *RequestContext) (any, error) {
	var params InitializeParams
	if err := json.Unmarshal(rc.Params, &params); err != nil {
		return nil, InvalidParams(fmt.Sprintf("bad initialize params: %v", err), nil)
	}

	negotiated := ProtocolVersion(params.ProtocolVersion)
	if !isSupportedVersion(params.ProtocolVersion) {
		negotiated = OldestProtocolVersion
	}

	if d.sessions != nil && rc.SessionID != "" {
		meta := SessionMeta{
			ProtocolVersion:    string(negotiated),
			ClientInfo:         params.ClientInfo,
			ClientCapabilities: params.Capabilities,
		}
		if _, err := d.sessions.Create(rc.Context, rc.SessionID, meta); err != nil {
			return nil, InternalError(err)
		}
		rc.session = &meta
	}

	return &InitializeResult{
		ProtocolVersion: string(negotiated),
		Capabilities:    d.capabilities(),
		ServerInfo:      d.serverInfo,
		Instructions:    d.instructions,
	}, nil
}

func (d *Dispatcher) handleToolsList(rc *RequestContext) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	tools := make([]*Tool, 0, len(d.toolOrder))
	for _, name := range d.toolOrder {
		tools = append(tools, d.tools[name].tool)
	}
	return &ListToolsResult{Tools: tools}, nil
}

func (d *Dispatcher) handleToolsCall(rc *RequestContext) (any, error) {
	var params CallToolParams
	if err := json.Unmarshal(rc.Params, &params); err != nil {
		return nil, InvalidParams(fmt.Sprintf("bad tools/call params: %v", err), nil)
	}

	d.mu.RLock()
	entry, ok := d.tools[params.Name]
	d.mu.RUnlock()
	if !ok {
		return nil, MethodNotFound(params.Name)
	}

	if _, err := d.schema.ValidateArguments(entry.inputSchema, params.Arguments); err != nil {
		return nil, InvalidParams(err.Error(), nil)
	}

	result, err := entry.handler(rc, params.Arguments)
	if err != nil {
		return nil, asError(err)
	}
	if result == nil {
		result = &CallToolResult{}
	}

	if entry.outputSchema != nil && !result.IsError {
		if err := d.schema.ValidateStructuredContent(entry.outputSchema, result.StructuredContent); err != nil {
			return nil, InvalidParams(fmt.Sprintf("structured content does not conform to output schema: %v", err), nil)
		}
	}
	return result, nil
}

func (d *Dispatcher) handlePromptsList(rc *RequestContext) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	prompts := make([]*Prompt, 0, len(d.promptOrder))
	for _, name := range d.promptOrder {
		prompts = append(prompts, d.prompts[name].prompt)
	}
	return &ListPromptsResult{Prompts: prompts}, nil
}

func (d *Dispatcher) handlePromptsGet(rc *RequestContext) (any, error) {
	var params GetPromptParams
	if err := json.Unmarshal(rc.Params, &params); err != nil {
		return nil, InvalidParams(fmt.Sprintf("bad prompts/get params: %v", err), nil)
	}
	d.mu.RLock()
	entry, ok := d.prompts[params.Name]
	d.mu.RUnlock()
	if !ok {
		return nil, MethodNotFound(params.Name)
	}
	result, err := entry.handler(rc, params.Arguments)
	if err != nil {
		return nil, asError(err)
	}
	return result, nil
}

func (d *Dispatcher) handleResourcesList(rc *RequestContext) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	resources := make([]*Resource, 0, len(d.resourceOrder))
	for _, uri := range d.resourceOrder {
		resources = append(resources, d.resources[uri].resource)
	}
	return &ListResourcesResult{Resources: resources}, nil
}

func (d *Dispatcher) handleResourceTemplatesList(rc *RequestContext) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	templates := make([]*ResourceTemplate, 0, len(d.resourceTemplates))
	for _, e := range d.resourceTemplates {
		templates = append(templates, e.template)
	}
	return &ListResourceTemplatesResult{ResourceTemplates: templates}, nil
}

func (d *Dispatcher) handleResourcesRead(rc *RequestContext) (any, error) {
	var params ReadResourceParams
	if err := json.Unmarshal(rc.Params, &params); err != nil {
		return nil, InvalidParams(fmt.Sprintf("bad resources/read params: %v", err), nil)
	}

	d.mu.RLock()
	staticEntry, isStatic := d.resources[params.URI]
	templates := make([]*resourceTemplateEntry, len(d.resourceTemplates))
	copy(templates, d.resourceTemplates)
	d.mu.RUnlock()

	if isStatic {
		return staticEntry.reader(rc, params.URI, nil)
	}

	for _, entry := range templates {
		vars, ok := entry.compiled.Match(params.URI)
		if !ok {
			continue
		}
		for name, validate := range entry.validators {
			if validate == nil {
				continue
			}
			if err := validate(vars[name]); err != nil {
				return nil, InvalidParams(fmt.Sprintf("invalid template variable %q: %v", name, err), nil)
			}
		}
		return entry.reader(rc, params.URI, vars)
	}

	return nil, MethodNotFound(params.URI)
}

var loggingLevelSeverity = map[LoggingLevel]int{
	LogDebug: 0, LogInfo: 1, LogNotice: 2, LogWarning: 3,
	LogError: 4, LogCritical: 5, LogAlert: 6, LogEmergency: 7,
}

func (d *Dispatcher) handleSetLoggingLevel(rc *RequestContext) (any, error) {
	var params SetLoggingLevelParams
	if err := json.Unmarshal(rc.Params, &params); err != nil {
		return nil, InvalidParams(fmt.Sprintf("bad logging/setLevel params: %v", err), nil)
	}
	if _, ok := loggingLevelSeverity[params.Level]; !ok {
		return nil, InvalidParams(fmt.Sprintf("unknown logging level %q", params.Level), nil)
	}
	d.logLevels.Store(rc.SessionID, params.Level)
	return struct{}{}, nil
}

// LogMessage sends a notifications/message notification to sessionID's
// session stream, provided the session's minimum level (set via
// logging/setLevel, defaulting to "info") is at or below level.
func (d *Dispatcher) LogMessage(ctx context.Context, sessionID string, level LoggingLevel, logger string, data any) error {
	min := LogInfo
	if v, ok := d.logLevels.Load(sessionID); ok {
		min = v.(LoggingLevel)
	}
	if loggingLevelSeverity[level] < loggingLevelSeverity[min] {
		return nil
	}
	n := d.notifier.Load()
	if n == nil {
		return nil
	}
	params := &LoggingMessageParams{Level: level, Logger: logger, Data: data}
	return n.Send(ctx, NotificationTarget{SessionID: sessionID}, "notifications/message", params)
}
