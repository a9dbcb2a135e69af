// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/go-mcp/streammcp/mcp"
)

func registerTools(server *mcp.Server) {
	server.AddTool(echoTool, echoInputSchema, nil, handleEcho)
	server.AddTool(longTaskTool, longTaskInputSchema, nil, handleLongTask)
	server.AddTool(askUserTool, askUserInputSchema, nil, handleAskUser)
}

var echoInputSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"message": {Type: "string"},
	},
	Required: []string{"message"},
}

var echoTool = &mcp.Tool{
	Name:        "echo",
	Description: "Echoes the message argument back as text content.",
	InputSchema: echoInputSchema,
}

type echoArgs struct {
	Message string `json:"message"`
}

func handleEcho(ctx *mcp.RequestContext, raw json.RawMessage) (*mcp.CallToolResult, error) {
	var args echoArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, mcp.InvalidParams(err.Error(), nil)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: args.Message}},
	}, nil
}

var longTaskInputSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"count": {Type: "integer", Minimum: jsonschemaPtr(1.0)},
	},
	Required: []string{"count"},
}

var longTaskTool = &mcp.Tool{
	Name:        "longTask",
	Description: "Emits one progress notification per unit of work, then reports completion.",
	InputSchema: longTaskInputSchema,
}

type longTaskArgs struct {
	Count int `json:"count"`
}

func handleLongTask(ctx *mcp.RequestContext, raw json.RawMessage) (*mcp.CallToolResult, error) {
	var args longTaskArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, mcp.InvalidParams(err.Error(), nil)
	}
	for i := 1; i <= args.Count; i++ {
		if err := ctx.Progress(float64(i), float64(args.Count), fmt.Sprintf("step %d/%d", i, args.Count)); err != nil {
			return nil, mcp.InternalError(err)
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("done %d", args.Count)}},
	}, nil
}

var askUserInputSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"question": {Type: "string"},
	},
	Required: []string{"question"},
}

var askUserTool = &mcp.Tool{
	Name:        "ask-user",
	Description: "Elicits a name from the client and greets it.",
	InputSchema: askUserInputSchema,
}

type askUserArgs struct {
	Question string `json:"question"`
}

func handleAskUser(ctx *mcp.RequestContext, raw json.RawMessage) (*mcp.CallToolResult, error) {
	var args askUserArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, mcp.InvalidParams(err.Error(), nil)
	}

	schema := mcp.ProjectElicitationSchema(&jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"name": {Type: "string"}},
		Required:   []string{"name"},
	})

	result, err := ctx.Elicit(&mcp.ElicitParams{Message: args.Question, RequestedSchema: schema}, 100*time.Millisecond)
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Timeout occurred: %v", err)}},
			IsError: true,
		}, nil
	}
	if result.Action != "accept" {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "the user declined"}},
		}, nil
	}

	name, _ := result.Content["name"].(string)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Hello, %s!", name)}},
	}, nil
}

func jsonschemaPtr[T any](v T) *T { return &v }
