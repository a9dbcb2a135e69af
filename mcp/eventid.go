// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"fmt"
	"strconv"
	"strings"
)

// formatEventID renders the resumption cursor for a session-persisted SSE
// event: "<seq>#<streamID>". Ordering is total within a stream (by seq) and
// undefined across streams.
func formatEventID(seq int64, streamID string) string {
	return fmt.Sprintf("%d#%s", seq, streamID)
}

// parseEventID parses a value produced by formatEventID, splitting at the
// last '#' so that a streamID may itself contain '#'.
func parseEventID(eventID string) (seq int64, streamID string, err error) {
	i := strings.LastIndexByte(eventID, '#')
	if i < 0 {
		return 0, "", fmt.Errorf("invalid event id %q: missing '#'", eventID)
	}
	seqPart, streamID := eventID[:i], eventID[i+1:]
	if streamID == "" {
		return 0, "", fmt.Errorf("invalid event id %q: empty stream id", eventID)
	}
	seq, convErr := strconv.ParseInt(seqPart, 10, 64)
	if convErr != nil || seq < 1 {
		return 0, "", fmt.Errorf("invalid event id %q: sequence must be a positive integer", eventID)
	}
	return seq, streamID, nil
}
