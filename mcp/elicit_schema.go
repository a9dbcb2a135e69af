// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "github.com/google/jsonschema-go/jsonschema"

// ProjectElicitationSchema reduces an arbitrary JSON Schema to the
// conservative subset elicitation clients must be able to render as a form:
// top-level properties of type string, number, integer, or boolean, plus
// top-level enums. Nested objects and arrays are dropped entirely, since a
// generic form renderer has no good way to display them. The required list
// is preserved for whichever properties survive the reduction.
//
// This is a deliberate interoperability floor, not a general-purpose schema
// simplifier: callers that need richer elicitation should render their own
// UI and bypass this projector.
func ProjectElicitationSchema(schema *jsonschema.Schema) *jsonschema.Schema {
	if schema == nil {
		return nil
	}

	projected := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema),
	}

	retained := make(map[string]bool)
	for name, prop := range schema.Properties {
		p := projectProperty(prop)
		if p == nil {
			continue
		}
		projected.Properties[name] = p
		retained[name] = true
	}

	for _, name := range schema.Required {
		if retained[name] {
			projected.Required = append(projected.Required, name)
		}
	}

	return projected
}

// projectProperty returns a reduced copy of prop if it is one of the
// conservative primitive shapes, or nil if it should be dropped.
func projectProperty(prop *jsonschema.Schema) *jsonschema.Schema {
	if prop == nil {
		return nil
	}
	switch prop.Type {
	case "string", "number", "integer", "boolean":
		out := &jsonschema.Schema{
			Type:        prop.Type,
			Title:       prop.Title,
			Description: prop.Description,
			Default:     prop.Default,
		}
		if len(prop.Enum) > 0 {
			out.Enum = prop.Enum
		}
		if prop.Type == "string" {
			out.MinLength = prop.MinLength
			out.MaxLength = prop.MaxLength
			out.Format = prop.Format
		}
		if prop.Type == "number" || prop.Type == "integer" {
			out.Minimum = prop.Minimum
			out.Maximum = prop.Maximum
		}
		return out
	default:
		// A bare top-level enum with no explicit type still renders as a
		// simple choice list.
		if len(prop.Enum) > 0 {
			return &jsonschema.Schema{Enum: prop.Enum, Title: prop.Title, Description: prop.Description}
		}
		return nil
	}
}
