// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"encoding/json"
	"fmt"
)

// Meta carries the protocol's reserved "_meta" object, attachable to most
// request/response/notification params.
type Meta map[string]any

// progressTokenKey is the well-known _meta key carrying a request's
// progress token.
const progressTokenKey = "progressToken"

// Content is the unstructured payload carried by tool results, prompt
// messages, and sampling messages: one of [TextContent], [ImageContent],
// [AudioContent], [EmbeddedResource], or [ResourceLink].
type Content interface {
	MarshalJSON() ([]byte, error)
	contentType() string
}

// TextContent is plain text.
type TextContent struct {
	Text        string
	Annotations *Annotations
}

func (c *TextContent) contentType() string { return "text" }

func (c *TextContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        string       `json:"type"`
		Text        string       `json:"text"`
		Annotations *Annotations `json:"annotations,omitempty"`
	}{"text", c.Text, c.Annotations})
}

// ImageContent is base64-encoded image data.
type ImageContent struct {
	Data        []byte // base64-encoded
	MIMEType    string
	Annotations *Annotations
}

func (c *ImageContent) contentType() string { return "image" }

func (c *ImageContent) MarshalJSON() ([]byte, error) {
	data := c.Data
	if data == nil {
		data = []byte{}
	}
	return json.Marshal(struct {
		Type        string       `json:"type"`
		Data        []byte       `json:"data"`
		MIMEType    string       `json:"mimeType"`
		Annotations *Annotations `json:"annotations,omitempty"`
	}{"image", data, c.MIMEType, c.Annotations})
}

// AudioContent is base64-encoded audio data.
type AudioContent struct {
	Data        []byte
	MIMEType    string
	Annotations *Annotations
}

func (c *AudioContent) contentType() string { return "audio" }

func (c *AudioContent) MarshalJSON() ([]byte, error) {
	data := c.Data
	if data == nil {
		data = []byte{}
	}
	return json.Marshal(struct {
		Type        string       `json:"type"`
		Data        []byte       `json:"data"`
		MIMEType    string       `json:"mimeType"`
		Annotations *Annotations `json:"annotations,omitempty"`
	}{"audio", data, c.MIMEType, c.Annotations})
}

// ResourceLink points at a resource without embedding its contents.
type ResourceLink struct {
	URI         string
	Name        string
	Description string
	MIMEType    string
	Annotations *Annotations
}

func (c *ResourceLink) contentType() string { return "resource_link" }

func (c *ResourceLink) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        string       `json:"type"`
		URI         string       `json:"uri"`
		Name        string       `json:"name,omitempty"`
		Description string       `json:"description,omitempty"`
		MIMEType    string       `json:"mimeType,omitempty"`
		Annotations *Annotations `json:"annotations,omitempty"`
	}{"resource_link", c.URI, c.Name, c.Description, c.MIMEType, c.Annotations})
}

// EmbeddedResource inlines a resource's contents.
type EmbeddedResource struct {
	Resource    *ResourceContents
	Annotations *Annotations
}

func (c *EmbeddedResource) contentType() string { return "resource" }

func (c *EmbeddedResource) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        string            `json:"type"`
		Resource    *ResourceContents `json:"resource"`
		Annotations *Annotations      `json:"annotations,omitempty"`
	}{"resource", c.Resource, c.Annotations})
}

// ResourceContents is the body of a resource, as returned by resources/read
// or embedded in a [EmbeddedResource].
type ResourceContents struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     []byte `json:"blob,omitempty"` // base64-encoded when present
}

// wireContent is the superset of fields used to decode any content variant.
type wireContent struct {
	Type        string            `json:"type"`
	Text        string            `json:"text,omitempty"`
	Data        []byte            `json:"data,omitempty"`
	MIMEType    string            `json:"mimeType,omitempty"`
	URI         string            `json:"uri,omitempty"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Resource    *ResourceContents `json:"resource,omitempty"`
	Annotations *Annotations      `json:"annotations,omitempty"`
}

func contentFromWire(w *wireContent) (Content, error) {
	if w == nil {
		return nil, nil
	}
	switch w.Type {
	case "text":
		return &TextContent{Text: w.Text, Annotations: w.Annotations}, nil
	case "image":
		return &ImageContent{Data: w.Data, MIMEType: w.MIMEType, Annotations: w.Annotations}, nil
	case "audio":
		return &AudioContent{Data: w.Data, MIMEType: w.MIMEType, Annotations: w.Annotations}, nil
	case "resource_link":
		return &ResourceLink{URI: w.URI, Name: w.Name, Description: w.Description, MIMEType: w.MIMEType, Annotations: w.Annotations}, nil
	case "resource":
		return &EmbeddedResource{Resource: w.Resource, Annotations: w.Annotations}, nil
	default:
		return nil, fmt.Errorf("unrecognized content type %q", w.Type)
	}
}

func contentsFromWire(ws []*wireContent) ([]Content, error) {
	if ws == nil {
		return nil, nil
	}
	out := make([]Content, len(ws))
	for i, w := range ws {
		c, err := contentFromWire(w)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// Annotations hints to the client how to treat a piece of content.
type Annotations struct {
	Audience     []Role  `json:"audience,omitempty"`
	LastModified string  `json:"lastModified,omitempty"`
	Priority     float64 `json:"priority,omitempty"`
}

// Role identifies the sender or recipient of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)
