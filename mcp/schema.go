// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// SchemaAdapter resolves and validates the schema a tool, prompt, or
// elicitation request declares. A nil adapter method is a no-op: callers
// that supply no schema get no validation, matching tool handlers that
// choose to do their own.
type SchemaAdapter struct {
	cache schemaCache
}

// NewSchemaAdapter returns a SchemaAdapter with an empty resolution cache.
func NewSchemaAdapter() *SchemaAdapter {
	return &SchemaAdapter{}
}

// schemaCache memoizes schema resolution by pointer identity, since server
// registrations are typically created once and reused across every request.
type schemaCache struct {
	mu    sync.Mutex
	byPtr map[*jsonschema.Schema]*jsonschema.Resolved
}

func (c *schemaCache) resolve(s *jsonschema.Schema) (*jsonschema.Resolved, error) {
	c.mu.Lock()
	if c.byPtr == nil {
		c.byPtr = make(map[*jsonschema.Schema]*jsonschema.Resolved)
	}
	if r, ok := c.byPtr[s]; ok {
		c.mu.Unlock()
		return r, nil
	}
	c.mu.Unlock()

	resolved, err := s.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.byPtr[s] = resolved
	c.mu.Unlock()
	return resolved, nil
}

// ValidateArguments decodes raw into a map and validates it against schema.
// A nil schema skips validation and decodes raw as-is. It's used for tool
// call arguments, whose acceptance is strict: unknown top-level fields are
// fine for jsonschema purposes (schema authors opt into additionalProperties
// themselves), but raw must still be a JSON object.
func (a *SchemaAdapter) ValidateArguments(schema *jsonschema.Schema, raw json.RawMessage) (map[string]any, error) {
	var args map[string]any
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if schema == nil {
		return args, nil
	}
	resolved, err := a.cache.resolve(schema)
	if err != nil {
		return nil, fmt.Errorf("resolving schema: %w", err)
	}
	if err := resolved.Validate(&args); err != nil {
		return nil, fmt.Errorf("arguments do not conform to input schema: %w", err)
	}
	return args, nil
}

// ValidateStructuredContent validates a tool's StructuredContent against its
// declared output schema, when one is present.
func (a *SchemaAdapter) ValidateStructuredContent(schema *jsonschema.Schema, content any) error {
	if schema == nil || content == nil {
		return nil
	}
	resolved, err := a.cache.resolve(schema)
	if err != nil {
		return fmt.Errorf("resolving output schema: %w", err)
	}
	data, err := json.Marshal(content)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return resolved.Validate(&v)
}
