// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "fmt"

// JSON-RPC error codes used by the dispatcher. These match the JSON-RPC 2.0
// reserved range, plus the MCP-specific -32000 used for protocol version
// mismatches during initialize.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeProtocolMismatch is returned, as a rejected initialize result (not
	// an error applied to routing), when the client's requested protocol
	// version cannot be negotiated.
	CodeProtocolMismatch = -32000
)

// Error is a JSON-RPC error carrying an MCP-aware code. It is the type
// returned by dispatcher internals and by handlers that want to produce a
// specific wire error rather than a generic internal error.
type Error struct {
	Code    int
	Message string
	Data    any
}

func (e *Error) Error() string {
	return fmt.Sprintf("mcp: %s (code %d)", e.Message, e.Code)
}

func (e *Error) wire() *WireError {
	return &WireError{Code: e.Code, Message: e.Message, Data: e.Data}
}

// ParseError reports that the request body was not valid JSON.
func ParseError(err error) *Error {
	return &Error{Code: CodeParseError, Message: fmt.Sprintf("parse error: %v", err)}
}

// InvalidRequest reports that the frame was not a well-formed JSON-RPC
// message, or used an unsupported feature (e.g. an unsupported batch).
func InvalidRequest(msg string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: msg}
}

// MethodNotFound reports that no handler is registered for method, or that a
// named tool/resource does not exist.
func MethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}
}

// InvalidParams reports a validation failure: bad tool arguments, a bad URI,
// a header/version mismatch, or malformed structured output.
func InvalidParams(msg string, data any) *Error {
	return &Error{Code: CodeInvalidParams, Message: msg, Data: data}
}

// InternalError wraps an unexpected handler error.
func InternalError(err error) *Error {
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

// protocolMismatchError reports that initialize could not negotiate a
// protocol version compatible with the one requested by the client.
func protocolMismatchError(supported, requested ProtocolVersion) *Error {
	return &Error{
		Code:    CodeProtocolMismatch,
		Message: "unsupported protocol version",
		Data: map[string]string{
			"supportedVersion": string(supported),
			"requestedVersion": string(requested),
		},
	}
}

// versionMismatchError reports that the MCP-Protocol-Version header on a
// non-initialize request didn't match the session's negotiated version.
func versionMismatchError(expected, received string) *Error {
	return &Error{
		Code:    CodeInvalidParams,
		Message: "Protocol version mismatch",
		Data: map[string]string{
			"expectedVersion": expected,
			"receivedVersion": received,
		},
	}
}

// asError converts any error into an *Error, defaulting to InternalError.
func asError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return InternalError(err)
}
