// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "testing"

func TestFormatEventIDRoundTrip(t *testing.T) {
	got := formatEventID(42, "stream-1")
	if got != "42#stream-1" {
		t.Fatalf("formatEventID = %q, want %q", got, "42#stream-1")
	}
	seq, streamID, err := parseEventID(got)
	if err != nil {
		t.Fatalf("parseEventID: %v", err)
	}
	if seq != 42 || streamID != "stream-1" {
		t.Fatalf("parseEventID = (%d, %q), want (42, %q)", seq, streamID, "stream-1")
	}
}

func TestParseEventIDStreamIDContainingHash(t *testing.T) {
	seq, streamID, err := parseEventID("7#a#b#c")
	if err != nil {
		t.Fatalf("parseEventID: %v", err)
	}
	if seq != 7 || streamID != "a#b#c" {
		t.Fatalf("parseEventID = (%d, %q), want (7, %q)", seq, streamID, "a#b#c")
	}
}

func TestParseEventIDErrors(t *testing.T) {
	cases := []string{
		"",
		"noHash",
		"12#",
		"abc#stream",
		"0#stream",
		"-1#stream",
	}
	for _, c := range cases {
		if _, _, err := parseEventID(c); err == nil {
			t.Errorf("parseEventID(%q): want error, got nil", c)
		}
	}
}
