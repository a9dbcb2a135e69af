// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command mcpdemo runs a small streammcp server exercising every component
// of the library: tools with progress and elicitation, a static resource, a
// resource template, and the optional rate-limit/auth middleware.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/go-mcp/streammcp/mcp"
)

// version is the demo binary's own version, independent of the protocol
// versions the library negotiates.
const version = "0.1.0"

type serveOptions struct {
	addr        string
	rateLimit   float64
	rateBurst   int
	jwtSecret   string
	stateless   bool
	instruction string
}

func main() {
	root := &cobra.Command{
		Use:   "mcpdemo",
		Short: "Demonstration server for the streammcp library",
	}
	root.AddCommand(versionCommand())
	root.AddCommand(serveCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the demo binary's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func serveCommand() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Bind the streaming HTTP transport and listen",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", ":8080", "address to listen on")
	flags.Float64Var(&opts.rateLimit, "rate-limit", 0, "per-session requests/sec; 0 disables rate limiting")
	flags.IntVar(&opts.rateBurst, "rate-burst", 5, "per-session burst size for --rate-limit")
	flags.StringVar(&opts.jwtSecret, "jwt-secret", "", "HMAC secret for bearer-token validation; empty disables auth")
	flags.BoolVar(&opts.stateless, "stateless", false, "disable session issuance and GET/DELETE")
	flags.StringVar(&opts.instruction, "instructions", "", "instructions returned from initialize")
	return cmd
}

func runServe(opts *serveOptions) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	server := mcp.NewServer(&mcp.Implementation{Name: "mcpdemo", Version: version}, &mcp.ServerOptions{
		Instructions: opts.instruction,
		HTTPOptions:  mcp.StreamableHTTPOptions{Stateless: opts.stateless},
	})

	server.Use(mcp.LoggingMiddleware(logger))
	if opts.rateLimit > 0 {
		server.Use(mcp.RateLimitMiddleware(rate.Limit(opts.rateLimit), opts.rateBurst))
	}
	if opts.jwtSecret != "" {
		server.Use(mcp.AuthMiddleware())
	}

	registerTools(server)
	registerResources(server)

	handler := server.Bind()
	if opts.jwtSecret != "" {
		keyFunc := func(t *jwt.Token) (any, error) { return []byte(opts.jwtSecret), nil }
		handler = mcp.RequireBearerJWT(keyFunc)(handler)
	}

	logger.Info("listening", "addr", opts.addr, "stateless", opts.stateless)
	return http.ListenAndServe(opts.addr, handler)
}
