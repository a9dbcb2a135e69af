// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-mcp/streammcp/internal/strictjson"
)

// ProtocolVersion is the wire value of a negotiated MCP protocol version.
type ProtocolVersion string

const (
	ProtocolVersion20250326 ProtocolVersion = "2025-03-26"
	ProtocolVersion20250618 ProtocolVersion = "2025-06-18"

	// LatestProtocolVersion is the newest protocol version this package
	// supports.
	LatestProtocolVersion = ProtocolVersion20250618
	// OldestProtocolVersion is the most-compatible version the server falls
	// back to when the client's requested version is unrecognized.
	OldestProtocolVersion = ProtocolVersion20250326
)

// SupportedProtocolVersions lists the protocol versions this package can
// negotiate, in ascending order.
var SupportedProtocolVersions = []ProtocolVersion{ProtocolVersion20250326, ProtocolVersion20250618}

func isSupportedVersion(v string) bool {
	for _, sv := range SupportedProtocolVersions {
		if string(sv) == v {
			return true
		}
	}
	return false
}

// ID is a JSON-RPC request identifier: a string, a number, or JSON null.
//
// A nil *ID denotes the absence of an "id" key altogether -- the hallmark of
// a notification -- which is distinct from an ID whose value is null.
type ID struct {
	value any // string, float64, or nil
}

// StringID returns an ID with a string value.
func StringID(s string) *ID { return &ID{value: s} }

// NumberID returns an ID with a numeric value.
func NumberID(n float64) *ID { return &ID{value: n} }

// NullID returns an ID whose wire value is JSON null.
func NullID() *ID { return &ID{value: nil} }

// Raw returns the underlying value: a string, a float64, or nil.
func (id *ID) Raw() any {
	if id == nil {
		return nil
	}
	return id.value
}

// String renders the ID for logging and map keys.
func (id *ID) String() string {
	if id == nil {
		return "<none>"
	}
	switch v := id.value.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	default:
		return "null"
	}
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.(type) {
	case string, float64, nil:
		id.value = v
		return nil
	default:
		return fmt.Errorf("jsonrpc: id must be a string, number, or null, got %T", v)
	}
}

// WireError is the JSON-RPC error object carried in a Response.
type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *WireError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Request is a JSON-RPC request: it carries an ID and expects a Response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Notification is a JSON-RPC request with no ID: it never receives a
// Response, success or failure.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC response: exactly one of Result or Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// Message is the parsed form of one JSON-RPC wire frame: exactly one of
// Request, Notification, or Response is non-nil.
type Message struct {
	Request      *Request
	Notification *Notification
	Response     *Response
}

// IsRequest reports whether m carries a request expecting a response.
func (m *Message) IsRequest() bool { return m.Request != nil }

// IsNotification reports whether m carries a notification.
func (m *Message) IsNotification() bool { return m.Notification != nil }

// IsResponse reports whether m carries a response to a server-initiated request.
func (m *Message) IsResponse() bool { return m.Response != nil }

// Method returns the method name for requests and notifications, or "" for
// responses.
func (m *Message) Method() string {
	switch {
	case m.Request != nil:
		return m.Request.Method
	case m.Notification != nil:
		return m.Notification.Method
	default:
		return ""
	}
}

// frameShape is used only to inspect which top-level keys are present in a
// raw JSON object, since that -- not the zero value of a Go field -- is what
// distinguishes a notification from a request with a null id.
type frameShape struct {
	JSONRPC *string          `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id"` // holds "null" for an explicit null id
	Method  *string          `json:"method"`
	Result  *json.RawMessage `json:"result"`
	Error   *json.RawMessage `json:"error"`
}

// ParseMessage parses a single JSON-RPC wire frame (not a batch array).
func ParseMessage(data []byte) (*Message, error) {
	var shape frameShape
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("malformed JSON-RPC frame: %w", err)
	}
	if shape.JSONRPC == nil || *shape.JSONRPC != "2.0" {
		return nil, fmt.Errorf("missing or invalid \"jsonrpc\" version")
	}
	switch {
	case shape.Method != nil && shape.ID != nil:
		var req Request
		if err := strictjson.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		if req.ID == nil {
			req.ID = NullID() // the key is present, so its null value is kept
		}
		return &Message{Request: &req}, nil
	case shape.Method != nil:
		var note Notification
		if err := strictjson.Unmarshal(data, &note); err != nil {
			return nil, err
		}
		return &Message{Notification: &note}, nil
	case shape.Result != nil || shape.Error != nil:
		var resp Response
		if err := strictjson.Unmarshal(data, &resp); err != nil {
			return nil, err
		}
		if resp.ID == nil {
			return nil, fmt.Errorf("response is missing \"id\"")
		}
		return &Message{Response: &resp}, nil
	default:
		return nil, fmt.Errorf("frame is neither a request, notification, nor response")
	}
}

// ParseBody parses an HTTP/transport body as either a single JSON-RPC frame
// or (when batch is allowed) a JSON array of frames.
func ParseBody(body []byte, allowBatch bool) (msgs []*Message, batch bool, err error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("empty body")
	}
	if trimmed[0] == '[' {
		if !allowBatch {
			return nil, true, errBatchNotSupported
		}
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, true, fmt.Errorf("malformed batch: %w", err)
		}
		if len(raw) == 0 {
			return nil, true, fmt.Errorf("batch must not be empty")
		}
		msgs = make([]*Message, len(raw))
		for i, r := range raw {
			m, err := ParseMessage(r)
			if err != nil {
				return nil, true, err
			}
			msgs[i] = m
		}
		return msgs, true, nil
	}
	m, err := ParseMessage(trimmed)
	if err != nil {
		return nil, false, err
	}
	return []*Message{m}, false, nil
}

var errBatchNotSupported = fmt.Errorf("batch requests are not supported")
