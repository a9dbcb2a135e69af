// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClientRequestAdapter is a ClientRequestAdapter for multi-instance
// deployments, where the handler awaiting a response and the HTTP handler
// that receives the client's POST may land on different server processes.
//
// Unlike [MemoryClientRequestAdapter], a pending entry here has no single
// owning process: its status lives in Redis, and every instance that holds a
// local waiter polls the shared entry for a terminal transition. As noted in
// the package's design notes, this poll-and-resolve path can race a local
// resolution against a concurrent remote update; deliverLocal is idempotent, so
// a redundant delivery after a local resolve is simply discarded.
type RedisClientRequestAdapter struct {
	rdb        *redis.Client
	keyPrefix  string
	pollPeriod time.Duration

	mu    sync.Mutex
	local map[string]chan PendingOutcome
}

// redisPendingRecord is the JSON value stored per pending key.
type redisPendingRecord struct {
	Status string          `json:"status"` // "pending", "resolved", "rejected"
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// NewRedisClientRequestAdapter returns a ClientRequestAdapter backed by rdb.
// pollPeriod controls how often a waiting instance checks for a remote
// resolution; a non-positive value defaults to 200ms.
func NewRedisClientRequestAdapter(rdb *redis.Client, keyPrefix string, pollPeriod time.Duration) *RedisClientRequestAdapter {
	if pollPeriod <= 0 {
		pollPeriod = 200 * time.Millisecond
	}
	return &RedisClientRequestAdapter{
		rdb:        rdb,
		keyPrefix:  keyPrefix,
		pollPeriod: pollPeriod,
		local:      make(map[string]chan PendingOutcome),
	}
}

func (a *RedisClientRequestAdapter) redisKey(key string) string {
	return a.keyPrefix + key
}

// CreatePending implements ClientRequestAdapter.
func (a *RedisClientRequestAdapter) CreatePending(ctx context.Context, sessionID, requestID string, timeout time.Duration) (<-chan PendingOutcome, error) {
	if timeout <= 0 {
		timeout = DefaultClientRequestTimeout
	}
	key := pendingKey(sessionID, requestID)
	rkey := a.redisKey(key)

	rec := redisPendingRecord{Status: "pending"}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if err := a.rdb.Set(ctx, rkey, data, timeout).Err(); err != nil {
		return nil, fmt.Errorf("redis pending adapter: %w", err)
	}

	ch := make(chan PendingOutcome, 1)
	a.mu.Lock()
	a.local[key] = ch
	a.mu.Unlock()

	deadline := time.Now().Add(timeout)
	go a.poll(ctx, key, rkey, deadline)

	return ch, nil
}

// poll periodically checks the shared record for a terminal transition, and
// locally delivers it exactly once when found. It also enforces the
// deadline locally, in case the Redis key's own TTL races with an update.
func (a *RedisClientRequestAdapter) poll(ctx context.Context, key, rkey string, deadline time.Time) {
	ticker := time.NewTicker(a.pollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.deliverLocal(key, PendingOutcome{Err: ctx.Err()})
			return
		case <-ticker.C:
			if time.Now().After(deadline) {
				a.deliverLocal(key, PendingOutcome{Err: fmt.Errorf("timed out waiting for client response")})
				_ = a.rdb.Del(context.Background(), rkey).Err()
				return
			}
			raw, err := a.rdb.Get(ctx, rkey).Bytes()
			if err != nil {
				if err == redis.Nil {
					// Expired without a resolution: treat as timeout.
					a.deliverLocal(key, PendingOutcome{Err: fmt.Errorf("pending request expired")})
					return
				}
				continue // transient redis error; try again next tick
			}
			var rec redisPendingRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				continue
			}
			switch rec.Status {
			case "resolved":
				a.deliverLocal(key, PendingOutcome{Result: rec.Result})
				return
			case "rejected":
				a.deliverLocal(key, PendingOutcome{Err: fmt.Errorf("%s", rec.Error)})
				return
			}
		}
	}
}

func (a *RedisClientRequestAdapter) deliverLocal(key string, outcome PendingOutcome) {
	a.mu.Lock()
	ch, ok := a.local[key]
	if ok {
		delete(a.local, key)
	}
	a.mu.Unlock()
	if !ok {
		return // already delivered locally; idempotent no-op
	}
	ch <- outcome
	close(ch)
}

// ResolvePending implements ClientRequestAdapter. It always writes the
// shared record (so other instances' pollers observe the resolution), and
// additionally resolves a local waiter if one happens to be registered on
// this instance.
func (a *RedisClientRequestAdapter) ResolvePending(sessionID, requestID string, result json.RawMessage) bool {
	return a.publish(sessionID, requestID, redisPendingRecord{Status: "resolved", Result: result})
}

// RejectPending implements ClientRequestAdapter.
func (a *RedisClientRequestAdapter) RejectPending(sessionID, requestID string, err error) bool {
	return a.publish(sessionID, requestID, redisPendingRecord{Status: "rejected", Error: err.Error()})
}

func (a *RedisClientRequestAdapter) publish(sessionID, requestID string, rec redisPendingRecord) bool {
	key := pendingKey(sessionID, requestID)
	data, err := json.Marshal(rec)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Preserve the key's existing TTL rather than resetting it.
		_ = a.rdb.Set(ctx, a.redisKey(key), data, redis.KeepTTL).Err()
	}

	var outcome PendingOutcome
	if rec.Status == "resolved" {
		outcome = PendingOutcome{Result: rec.Result}
	} else {
		outcome = PendingOutcome{Err: fmt.Errorf("%s", rec.Error)}
	}
	a.mu.Lock()
	ch, ok := a.local[key]
	if ok {
		delete(a.local, key)
	}
	a.mu.Unlock()
	if !ok {
		return false
	}
	ch <- outcome
	close(ch)
	return true
}
