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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServerDefaultsStoreAndAdapter(t *testing.T) {
	s := NewServer(&Implementation{Name: "s", Version: "1"}, nil)
	require.NotNil(t, s.sessions, "NewServer should default SessionStore when opts is nil")
	require.NotNil(t, s.pending, "NewServer should default ClientRequestAdapter when opts is nil")
}

func TestNewServerHonorsProvidedStoreAndAdapter(t *testing.T) {
	store := NewMemorySessionStore(4)
	adapter := NewMemoryClientRequestAdapter()
	s := NewServer(&Implementation{Name: "s", Version: "1"}, &ServerOptions{
		SessionStore:         store,
		ClientRequestAdapter: adapter,
	})
	assert.Same(t, store, s.sessions)
	assert.Same(t, adapter, s.pending)
}

func TestServerRegistrationDelegatesToDispatcher(t *testing.T) {
	s := NewServer(&Implementation{Name: "s", Version: "1"}, nil)

	var used []string
	s.Use(func(ctx *RequestContext, next func()) {
		used = append(used, "mw")
		next()
	})
	s.AddTool(&Tool{Name: "echo"}, nil, nil, func(ctx *RequestContext, args json.RawMessage) (*CallToolResult, error) {
		return &CallToolResult{Content: []Content{&TextContent{Text: "ok"}}}, nil
	})
	s.AddPrompt(&Prompt{Name: "greet"}, func(ctx *RequestContext, args map[string]string) (*GetPromptResult, error) {
		return &GetPromptResult{}, nil
	})
	s.AddResource(&Resource{URI: "static:///info", Name: "info"}, func(ctx *RequestContext, uri string, vars map[string]string) (*ReadResourceResult, error) {
		return &ReadResourceResult{}, nil
	})
	require.NoError(t, s.AddResourceTemplate(
		&ResourceTemplate{URITemplate: "greeting:///{name}", Name: "greeting"},
		nil,
		func(ctx *RequestContext, uri string, vars map[string]string) (*ReadResourceResult, error) {
			return &ReadResourceResult{}, nil
		},
	))

	resp := dispatchRequest(t, s.Dispatcher(), "", "tools/call", &CallToolParams{Name: "echo"})
	require.Nil(t, resp.Error)
	if len(used) != 1 {
		t.Fatalf("middleware registered via Server.Use did not run: %v", used)
	}
}

func TestServerLogMessageDelegatesToDispatcher(t *testing.T) {
	s := NewServer(&Implementation{Name: "s", Version: "1"}, nil)
	sender := NewNotificationSender(s.Dispatcher().sessions)
	s.Dispatcher().BindNotifier(sender)

	w := &recordingWriter{}
	unbind := sender.BindSessionWriter("sess-1", w)
	defer unbind()
	s.Dispatcher().sessions.Create(context.Background(), "sess-1", SessionMeta{})

	require.NoError(t, s.LogMessage(context.Background(), "sess-1", LogWarning, "test", "hello"))
	if w.count() != 1 {
		t.Fatalf("w.count() = %d, want 1", w.count())
	}
}

func TestServerBindProducesAWorkingHandler(t *testing.T) {
	s := NewServer(&Implementation{Name: "s", Version: "1"}, nil)
	s.AddTool(&Tool{Name: "echo"}, nil, nil, func(ctx *RequestContext, args json.RawMessage) (*CallToolResult, error) {
		return &CallToolResult{Content: []Content{&TextContent{Text: "pong"}}}, nil
	})

	ts := httptest.NewServer(s.Bind())
	defer ts.Close()

	initBody := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`
	resp, err := http.Post(ts.URL, "application/json", strings.NewReader(initBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessionID := resp.Header.Get("MCP-Session-Id")
	require.NotEmpty(t, sessionID)

	callBody := `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{}}}`
	req, err := http.NewRequest(http.MethodPost, ts.URL, strings.NewReader(callBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("MCP-Session-Id", sessionID)
	req.Header.Set("MCP-Protocol-Version", string(ProtocolVersion20250618))
	callResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer callResp.Body.Close()
	require.Equal(t, http.StatusOK, callResp.StatusCode)

	var parsed Response
	require.NoError(t, json.NewDecoder(callResp.Body).Decode(&parsed))
	require.Nil(t, parsed.Error)

	var result CallToolResult
	require.NoError(t, json.Unmarshal(parsed.Result, &result))
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*TextContent)
	require.True(t, ok)
	assert.Equal(t, "pong", text.Text)
}
