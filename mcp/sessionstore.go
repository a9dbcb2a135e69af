// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// DefaultMaxEventBufferSize bounds the number of events retained per stream
// when a session store isn't configured with an explicit size.
const DefaultMaxEventBufferSize = 256

// SessionMeta is the immutable state captured from a session's initialize
// request.
type SessionMeta struct {
	ProtocolVersion    string
	ClientInfo         *Implementation
	ClientCapabilities *ClientCapabilities
}

// storedEvent is one event retained in a stream's ring buffer.
type storedEvent struct {
	seq     int64
	message any
}

// streamState is the per-stream event buffer backing replay.
type streamState struct {
	nextSeq int64 // next sequence number to allocate; starts at 1
	buffer  []storedEvent
}

// SessionData is a session's server-side record: its negotiated metadata
// plus one event buffer per logical stream.
type SessionData struct {
	ID   string
	Meta SessionMeta

	mu      sync.Mutex
	streams map[string]*streamState
}

// SessionStore owns session metadata and the per-stream, per-session event
// buffers that back resumable replay. Implementations must be safe for
// concurrent use.
type SessionStore interface {
	// GenerateSessionID returns a new, server-allocated, unforgeable session
	// identifier.
	GenerateSessionID() string

	// Create registers a new session with the given id and metadata.
	Create(ctx context.Context, id string, meta SessionMeta) (*SessionData, error)

	// Has reports whether a session with the given id is registered.
	Has(ctx context.Context, id string) bool

	// Get returns the session with the given id, or ok=false if none exists.
	Get(ctx context.Context, id string) (data *SessionData, ok bool)

	// AppendEvent persists message to the named stream of session id,
	// allocating and returning its event id. It returns ok=false if the
	// session does not exist. Buffers are FIFO-trimmed to the store's
	// configured capacity.
	AppendEvent(ctx context.Context, id, streamID string, message any) (eventID string, ok bool)

	// Replay invokes write, in order, for every event on the stream named by
	// lastEventID's parsed stream component whose sequence number exceeds
	// lastEventID's sequence number. An unknown stream id is a silent no-op.
	Replay(ctx context.Context, id, lastEventID string, write func(eventID string, message any) error) error

	// Delete removes the session and all of its stream buffers.
	Delete(ctx context.Context, id string) error
}

// MemorySessionStore is the reference, single-process SessionStore. It is
// the store used when a server is constructed without an explicit
// alternative; distributed deployments should supply their own.
type MemorySessionStore struct {
	maxEventBufferSize int

	mu       sync.Mutex
	sessions map[string]*SessionData
}

// NewMemorySessionStore returns a MemorySessionStore whose stream buffers
// retain at most maxEventBufferSize events each. A non-positive value falls
// back to [DefaultMaxEventBufferSize].
func NewMemorySessionStore(maxEventBufferSize int) *MemorySessionStore {
	if maxEventBufferSize <= 0 {
		maxEventBufferSize = DefaultMaxEventBufferSize
	}
	return &MemorySessionStore{
		maxEventBufferSize: maxEventBufferSize,
		sessions:           make(map[string]*SessionData),
	}
}

// GenerateSessionID implements SessionStore.
func (s *MemorySessionStore) GenerateSessionID() string {
	return uuid.NewString()
}

// Create implements SessionStore.
func (s *MemorySessionStore) Create(ctx context.Context, id string, meta SessionMeta) (*SessionData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := &SessionData{ID: id, Meta: meta, streams: make(map[string]*streamState)}
	s.mu.Lock()
	s.sessions[id] = data
	s.mu.Unlock()
	return data, nil
}

// Has implements SessionStore.
func (s *MemorySessionStore) Has(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

// Get implements SessionStore.
func (s *MemorySessionStore) Get(ctx context.Context, id string) (*SessionData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[id]
	return data, ok
}

// AppendEvent implements SessionStore.
func (s *MemorySessionStore) AppendEvent(ctx context.Context, id, streamID string, message any) (string, bool) {
	s.mu.Lock()
	data, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return "", false
	}

	data.mu.Lock()
	defer data.mu.Unlock()
	st, ok := data.streams[streamID]
	if !ok {
		st = &streamState{nextSeq: 1}
		data.streams[streamID] = st
	}
	seq := st.nextSeq
	st.nextSeq++
	st.buffer = append(st.buffer, storedEvent{seq: seq, message: message})
	if over := len(st.buffer) - s.maxEventBufferSize; over > 0 {
		st.buffer = st.buffer[over:]
	}
	return formatEventID(seq, streamID), true
}

// Replay implements SessionStore.
func (s *MemorySessionStore) Replay(ctx context.Context, id, lastEventID string, write func(eventID string, message any) error) error {
	lastSeq, streamID, err := parseEventID(lastEventID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	data, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	data.mu.Lock()
	st, ok := data.streams[streamID]
	var toSend []storedEvent
	if ok {
		for _, ev := range st.buffer {
			if ev.seq > lastSeq {
				toSend = append(toSend, ev)
			}
		}
	}
	data.mu.Unlock()

	for _, ev := range toSend {
		if err := write(formatEventID(ev.seq, streamID), ev.message); err != nil {
			return err
		}
	}
	return nil
}

// Delete implements SessionStore.
func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}
