// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "encoding/json"

// Implementation describes a client or server implementation.
type Implementation struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version"`
}

// RootCapabilities describes a client's support for roots.
type RootCapabilities struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// SamplingCapabilities describes a client's support for sampling.
type SamplingCapabilities struct{}

// ElicitationCapabilities describes a client's support for elicitation.
type ElicitationCapabilities struct{}

// ClientCapabilities is what a client declares during initialize.
type ClientCapabilities struct {
	Experimental map[string]any           `json:"experimental,omitempty"`
	Roots        *RootCapabilities        `json:"roots,omitempty"`
	Sampling     *SamplingCapabilities    `json:"sampling,omitempty"`
	Elicitation  *ElicitationCapabilities `json:"elicitation,omitempty"`
}

// Supports reports whether the client declared support for the named
// top-level capability ("sampling", "elicitation", or "roots").
func (c *ClientCapabilities) Supports(capability string) bool {
	if c == nil {
		return false
	}
	switch capability {
	case "sampling":
		return c.Sampling != nil
	case "elicitation":
		return c.Elicitation != nil
	case "roots":
		return c.Roots != nil
	default:
		_, ok := c.Experimental[capability]
		return ok
	}
}

// ToolCapabilities describes server support for tools.
type ToolCapabilities struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptCapabilities describes server support for prompts.
type PromptCapabilities struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourceCapabilities describes server support for resources.
type ResourceCapabilities struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// LoggingCapabilities indicates the server accepts logging/setLevel.
type LoggingCapabilities struct{}

// ServerCapabilities is derived from registry contents at initialize time, not
// echoed from the client's request.
type ServerCapabilities struct {
	Tools     *ToolCapabilities     `json:"tools,omitempty"`
	Prompts   *PromptCapabilities   `json:"prompts,omitempty"`
	Resources *ResourceCapabilities `json:"resources,omitempty"`
	Logging   *LoggingCapabilities  `json:"logging,omitempty"`
}

// InitializeParams is sent by the client to open a session.
type InitializeParams struct {
	Meta            Meta                `json:"_meta,omitempty"`
	ProtocolVersion string              `json:"protocolVersion"`
	Capabilities    *ClientCapabilities `json:"capabilities"`
	ClientInfo      *Implementation     `json:"clientInfo"`
}

// InitializeResult is the server's reply to initialize.
type InitializeResult struct {
	Meta            Meta                `json:"_meta,omitempty"`
	ProtocolVersion string              `json:"protocolVersion"`
	Capabilities    *ServerCapabilities `json:"capabilities"`
	ServerInfo      *Implementation     `json:"serverInfo"`
	Instructions    string              `json:"instructions,omitempty"`
}

// CancelledParams is sent by either party to report that it has given up
// waiting for a request it previously issued.
type CancelledParams struct {
	RequestID any    `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

// ProgressNotificationParams reports incremental progress against a
// previously supplied progress token.
type ProgressNotificationParams struct {
	ProgressToken any     `json:"progressToken"`
	Progress      float64 `json:"progress"`
	Total         float64 `json:"total,omitempty"`
	Message       string  `json:"message,omitempty"`
}

// LoggingLevel is an RFC-5424 syslog severity name.
type LoggingLevel string

const (
	LogDebug     LoggingLevel = "debug"
	LogInfo      LoggingLevel = "info"
	LogNotice    LoggingLevel = "notice"
	LogWarning   LoggingLevel = "warning"
	LogError     LoggingLevel = "error"
	LogCritical  LoggingLevel = "critical"
	LogAlert     LoggingLevel = "alert"
	LogEmergency LoggingLevel = "emergency"
)

// SetLoggingLevelParams requests a minimum severity for notifications/message.
type SetLoggingLevelParams struct {
	Level LoggingLevel `json:"level"`
}

// LoggingMessageParams is a server->client log notification.
type LoggingMessageParams struct {
	Level  LoggingLevel `json:"level"`
	Logger string       `json:"logger,omitempty"`
	Data   any          `json:"data"`
}

// --- Tools ---

// ToolAnnotations are non-authoritative hints about tool behavior.
type ToolAnnotations struct {
	Title           string `json:"title,omitempty"`
	ReadOnlyHint    bool   `json:"readOnlyHint,omitempty"`
	DestructiveHint *bool  `json:"destructiveHint,omitempty"`
	IdempotentHint  bool   `json:"idempotentHint,omitempty"`
	OpenWorldHint   *bool  `json:"openWorldHint,omitempty"`
}

// Tool is the wire description of a registered tool.
type Tool struct {
	Name        string           `json:"name"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	InputSchema any              `json:"inputSchema"`
	OutputSchema any             `json:"outputSchema,omitempty"`
	Annotations *ToolAnnotations `json:"annotations,omitempty"`
}

// ListToolsParams requests a page of the tool registry.
type ListToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListToolsResult is the server's reply to tools/list.
type ListToolsResult struct {
	Tools      []*Tool `json:"tools"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

// CallToolParams requests invocation of a named tool.
type CallToolParams struct {
	Meta      Meta            `json:"_meta,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is a tool's wire response.
type CallToolResult struct {
	Content           []Content `json:"content"`
	StructuredContent any       `json:"structuredContent,omitempty"`
	IsError           bool      `json:"isError,omitempty"`

	err error // set via SetError; never marshaled
}

// SetError marks the result as an error and populates Content with err's text.
func (r *CallToolResult) SetError(err error) {
	r.Content = []Content{&TextContent{Text: err.Error()}}
	r.IsError = true
	r.err = err
}

// GetError returns the error passed to SetError, if any.
func (r *CallToolResult) GetError() error { return r.err }

func (r *CallToolResult) UnmarshalJSON(data []byte) error {
	type result CallToolResult
	var wire struct {
		result
		Content []*wireContent `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	content, err := contentsFromWire(wire.Content)
	if err != nil {
		return err
	}
	*r = CallToolResult(wire.result)
	r.Content = content
	return nil
}

// ToolHandler implements a tool's business logic. args is the raw,
// not-yet-unmarshaled arguments: it is the handler's responsibility to
// unmarshal and (if desired) re-validate them.
type ToolHandler func(ctx *RequestContext, args json.RawMessage) (*CallToolResult, error)

// --- Prompts ---

// PromptArgument describes one templated argument of a prompt.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Prompt is the wire description of a registered prompt.
type Prompt struct {
	Name        string            `json:"name"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Arguments   []*PromptArgument `json:"arguments,omitempty"`
}

// ListPromptsParams requests a page of the prompt registry.
type ListPromptsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListPromptsResult is the server's reply to prompts/list.
type ListPromptsResult struct {
	Prompts    []*Prompt `json:"prompts"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

// GetPromptParams requests a rendered prompt.
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// PromptMessage is one message in a rendered prompt.
type PromptMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

func (m *PromptMessage) UnmarshalJSON(data []byte) error {
	var wire struct {
		Role    Role         `json:"role"`
		Content *wireContent `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c, err := contentFromWire(wire.Content)
	if err != nil {
		return err
	}
	m.Role, m.Content = wire.Role, c
	return nil
}

// GetPromptResult is the server's reply to prompts/get.
type GetPromptResult struct {
	Description string           `json:"description,omitempty"`
	Messages    []*PromptMessage `json:"messages"`
}

// PromptHandler renders a prompt's messages given its arguments.
type PromptHandler func(ctx *RequestContext, args map[string]string) (*GetPromptResult, error)

// --- Resources ---

// Resource is the wire description of a static resource.
type Resource struct {
	URI         string       `json:"uri"`
	Name        string       `json:"name"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	MIMEType    string       `json:"mimeType,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

// ResourceTemplate is the wire description of a URI-template resource.
type ResourceTemplate struct {
	URITemplate string       `json:"uriTemplate"`
	Name        string       `json:"name"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	MIMEType    string       `json:"mimeType,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

// ListResourcesParams requests a page of the static resource registry.
type ListResourcesParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListResourcesResult is the server's reply to resources/list.
type ListResourcesResult struct {
	Resources  []*Resource `json:"resources"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

// ListResourceTemplatesParams requests a page of the resource template registry.
type ListResourceTemplatesParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListResourceTemplatesResult is the server's reply to resources/templates/list.
type ListResourceTemplatesResult struct {
	ResourceTemplates []*ResourceTemplate `json:"resourceTemplates"`
	NextCursor        string              `json:"nextCursor,omitempty"`
}

// ReadResourceParams requests the contents of a URI.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ReadResourceResult is the server's reply to resources/read.
type ReadResourceResult struct {
	Contents []*ResourceContents `json:"contents"`
}

// SubscribeParams requests update notifications for a resource.
type SubscribeParams struct {
	URI string `json:"uri"`
}

// UnsubscribeParams cancels a resource subscription.
type UnsubscribeParams struct {
	URI string `json:"uri"`
}

// ResourceReader produces the contents of a resource. For a template-backed
// resource, vars holds the matched URI template variables.
type ResourceReader func(ctx *RequestContext, uri string, vars map[string]string) (*ReadResourceResult, error)

// VariableValidator validates a single URI template variable's matched
// value, returning an error if it is unacceptable.
type VariableValidator func(value string) error

// --- Sampling ---

// ModelHint is a soft preference for a model family or name.
type ModelHint struct {
	Name string `json:"name,omitempty"`
}

// ModelPreferences are advisory hints for server-initiated sampling.
type ModelPreferences struct {
	Hints                []*ModelHint `json:"hints,omitempty"`
	CostPriority         float64      `json:"costPriority,omitempty"`
	SpeedPriority        float64      `json:"speedPriority,omitempty"`
	IntelligencePriority float64      `json:"intelligencePriority,omitempty"`
}

// SamplingMessage is one turn of the conversation sent for sampling.
type SamplingMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

func (m *SamplingMessage) UnmarshalJSON(data []byte) error {
	var wire struct {
		Role    Role         `json:"role"`
		Content *wireContent `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c, err := contentFromWire(wire.Content)
	if err != nil {
		return err
	}
	m.Role, m.Content = wire.Role, c
	return nil
}

// CreateMessageParams is a server->client sampling request.
type CreateMessageParams struct {
	Messages         []*SamplingMessage `json:"messages"`
	ModelPreferences *ModelPreferences  `json:"modelPreferences,omitempty"`
	SystemPrompt     string             `json:"systemPrompt,omitempty"`
	IncludeContext   string             `json:"includeContext,omitempty"`
	Temperature      float64            `json:"temperature,omitempty"`
	MaxTokens        int64              `json:"maxTokens"`
	StopSequences    []string           `json:"stopSequences,omitempty"`
	Metadata         any                `json:"metadata,omitempty"`
}

// CreateMessageResult is the client's reply to a sampling request.
type CreateMessageResult struct {
	Role       Role    `json:"role"`
	Content    Content `json:"content"`
	Model      string  `json:"model"`
	StopReason string  `json:"stopReason,omitempty"`
}

func (r *CreateMessageResult) UnmarshalJSON(data []byte) error {
	type result CreateMessageResult
	var wire struct {
		result
		Content *wireContent `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c, err := contentFromWire(wire.Content)
	if err != nil {
		return err
	}
	*r = CreateMessageResult(wire.result)
	r.Content = c
	return nil
}

// --- Elicitation ---

// ElicitParams asks the client to collect structured input from its user.
type ElicitParams struct {
	Message         string `json:"message"`
	RequestedSchema any    `json:"requestedSchema"`
}

// ElicitResult is the client's reply to an elicitation request.
type ElicitResult struct {
	Action  string         `json:"action"` // "accept", "decline", or "cancel"
	Content map[string]any `json:"content,omitempty"`
}
