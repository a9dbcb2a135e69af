// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthInfo is what a bearer-token middleware forwards to handlers via
// RequestContext.AuthInfo. The dispatcher treats its concrete type as an
// application contract; this is the shape the package's own JWT middleware
// produces.
type AuthInfo struct {
	Subject string
	Scopes  []string
	Claims  jwt.MapClaims
}

// HasScope reports whether info carries scope, treating a nil AuthInfo as
// scopeless.
func (info *AuthInfo) HasScope(scope string) bool {
	if info == nil {
		return false
	}
	for _, s := range info.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type authInfoContextKey struct{}

// RequireBearerJWT returns HTTP middleware that validates the Authorization
// header as a signed JWT using keyFunc (see [jwt.Parse]), rejecting the
// request with 401 on failure. On success, it stores an [AuthInfo] in the
// request context for [AuthMiddleware] to forward into RequestContext.
func RequireBearerJWT(keyFunc jwt.Keyfunc, parserOpts ...jwt.ParserOption) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="mcp"`)
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenStr, keyFunc, parserOpts...)
			if err != nil || !token.Valid {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}

			claims, _ := token.Claims.(jwt.MapClaims)
			subject, _ := claims["sub"].(string)
			info := &AuthInfo{Subject: subject, Claims: claims, Scopes: splitScopeClaim(claims)}

			ctx := context.WithValue(r.Context(), authInfoContextKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func splitScopeClaim(claims jwt.MapClaims) []string {
	raw, _ := claims["scope"].(string)
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}

// AuthInfoFromContext retrieves the AuthInfo stashed by RequireBearerJWT, if
// any.
func AuthInfoFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authInfoContextKey{}).(*AuthInfo)
	return info, ok
}

// AuthMiddleware is a dispatcher [Middleware] that copies the AuthInfo
// attached to the request's context (by RequireBearerJWT, or any other HTTP
// middleware using the same context key) onto the RequestContext, so tool
// and resource handlers can make authorization decisions.
func AuthMiddleware() Middleware {
	return func(ctx *RequestContext, next func()) {
		if info, ok := AuthInfoFromContext(ctx.Context); ok {
			ctx.AuthInfo = info
		}
		next()
	}
}
