// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// slogToMCP maps slog's severity scale onto the RFC-5424 names MCP uses for
// logging/message notifications, following the same split points the
// package's reference server uses for its own log plumbing.
var slogToMCP = map[slog.Level]LoggingLevel{
	slog.LevelDebug:                  LogDebug,
	slog.LevelInfo:                   LogInfo,
	(slog.LevelInfo + slog.LevelWarn) / 2: LogNotice,
	slog.LevelWarn:                   LogWarning,
	slog.LevelError:                  LogError,
	slog.LevelError + 4:              LogCritical,
	slog.LevelError + 8:              LogAlert,
	slog.LevelError + 12:             LogEmergency,
}

func slogLevelToMCP(l slog.Level) LoggingLevel {
	if ml, ok := slogToMCP[l]; ok {
		return ml
	}
	return LogDebug
}

// LoggingMiddleware logs one structured line per dispatch via logger,
// recording the method, session, outcome, and latency. It never alters
// ctx.Response/Err; it only observes them after next runs, which is the
// contract middleware placed after it in the chain must also respect.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(ctx *RequestContext, next func()) {
		start := time.Now()
		next()
		attrs := []any{
			slog.String("method", ctx.Method),
			slog.String("sessionId", ctx.SessionID),
			slog.Duration("elapsed", time.Since(start)),
		}
		if ctx.Err != nil {
			logger.Warn("dispatch failed", append(attrs, slog.Int("code", ctx.Err.Code), slog.String("message", ctx.Err.Message))...)
			return
		}
		logger.Info("dispatch ok", attrs...)
	}
}

// RateLimitMiddleware enforces a per-session token bucket built on
// golang.org/x/time/rate. Sessionless traffic shares a single bucket keyed
// by the empty session id.
func RateLimitMiddleware(rps rate.Limit, burst int) Middleware {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	limiterFor := func(sessionID string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[sessionID]
		if !ok {
			l = rate.NewLimiter(rps, burst)
			limiters[sessionID] = l
		}
		return l
	}

	return func(ctx *RequestContext, next func()) {
		if !limiterFor(ctx.SessionID).Allow() {
			ctx.Err = &Error{Code: CodeInvalidRequest, Message: "rate limit exceeded"}
			return
		}
		next()
	}
}
