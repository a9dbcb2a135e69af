// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/go-mcp/streammcp/mcp"
)

func registerResources(server *mcp.Server) {
	server.AddResource(&mcp.Resource{
		URI:      "embedded:info",
		Name:     "info",
		MIMEType: "text/plain",
	}, handleInfoResource)

	err := server.AddResourceTemplate(
		&mcp.ResourceTemplate{
			URITemplate: "greeting:///{name}",
			Name:        "greeting",
			MIMEType:    "text/plain",
		},
		map[string]mcp.VariableValidator{
			"name": validateGreetingName,
		},
		handleGreetingResource,
	)
	if err != nil {
		panic(fmt.Sprintf("registering greeting template: %v", err))
	}
}

func handleInfoResource(ctx *mcp.RequestContext, uri string, vars map[string]string) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: "text/plain", Text: "This is the mcpdemo example server."},
		},
	}, nil
}

func validateGreetingName(value string) error {
	if value == "" {
		return fmt.Errorf("name must not be empty")
	}
	return nil
}

func handleGreetingResource(ctx *mcp.RequestContext, uri string, vars map[string]string) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: "text/plain", Text: fmt.Sprintf("Hello, %s!", vars["name"])},
		},
	}, nil
}
