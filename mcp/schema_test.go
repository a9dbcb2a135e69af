// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"encoding/json"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

func TestValidateArgumentsNilSchemaSkipsValidation(t *testing.T) {
	a := NewSchemaAdapter()
	args, err := a.ValidateArguments(nil, json.RawMessage(`{"anything":1}`))
	if err != nil {
		t.Fatalf("ValidateArguments: %v", err)
	}
	if args["anything"] != float64(1) {
		t.Errorf("args = %v", args)
	}
}

func TestValidateArgumentsEmptyRawDefaultsToObject(t *testing.T) {
	a := NewSchemaAdapter()
	args, err := a.ValidateArguments(nil, nil)
	if err != nil {
		t.Fatalf("ValidateArguments: %v", err)
	}
	if len(args) != 0 {
		t.Errorf("args = %v, want empty map", args)
	}
}

func TestValidateArgumentsRejectsNonObject(t *testing.T) {
	a := NewSchemaAdapter()
	if _, err := a.ValidateArguments(nil, json.RawMessage(`[1,2,3]`)); err == nil {
		t.Fatal("expected error for a non-object arguments payload")
	}
}

func TestValidateArgumentsAgainstSchema(t *testing.T) {
	a := NewSchemaAdapter()
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"name": {Type: "string"},
		},
		Required: []string{"name"},
	}
	if _, err := a.ValidateArguments(schema, json.RawMessage(`{"name":"ok"}`)); err != nil {
		t.Fatalf("ValidateArguments with a satisfying payload: %v", err)
	}
	if _, err := a.ValidateArguments(schema, json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected a validation error for a missing required property")
	}
}

func TestValidateArgumentsCachesResolution(t *testing.T) {
	a := NewSchemaAdapter()
	schema := &jsonschema.Schema{Type: "object"}
	if _, err := a.ValidateArguments(schema, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("first ValidateArguments: %v", err)
	}
	if _, ok := a.cache.byPtr[schema]; !ok {
		t.Fatal("schema resolution should be cached by pointer identity after first use")
	}
	if _, err := a.ValidateArguments(schema, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("second ValidateArguments: %v", err)
	}
}

func TestValidateStructuredContentNilIsNoOp(t *testing.T) {
	a := NewSchemaAdapter()
	if err := a.ValidateStructuredContent(nil, map[string]any{"x": 1}); err != nil {
		t.Fatalf("ValidateStructuredContent with nil schema: %v", err)
	}
	schema := &jsonschema.Schema{Type: "object"}
	if err := a.ValidateStructuredContent(schema, nil); err != nil {
		t.Fatalf("ValidateStructuredContent with nil content: %v", err)
	}
}

func TestValidateStructuredContentAgainstSchema(t *testing.T) {
	a := NewSchemaAdapter()
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"total": {Type: "integer"},
		},
		Required: []string{"total"},
	}
	if err := a.ValidateStructuredContent(schema, map[string]any{"total": 3}); err != nil {
		t.Fatalf("ValidateStructuredContent with a satisfying value: %v", err)
	}
	if err := a.ValidateStructuredContent(schema, map[string]any{}); err == nil {
		t.Fatal("expected a validation error for missing required structured content field")
	}
}
