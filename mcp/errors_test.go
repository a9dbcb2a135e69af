// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"errors"
	"testing"
)

func TestErrorConstructorCodes(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		code int
	}{
		{"ParseError", ParseError(errors.New("bad token")), CodeParseError},
		{"InvalidRequest", InvalidRequest("missing method"), CodeInvalidRequest},
		{"MethodNotFound", MethodNotFound("tools/nope"), CodeMethodNotFound},
		{"InvalidParams", InvalidParams("bad args", nil), CodeInvalidParams},
		{"InternalError", InternalError(errors.New("boom")), CodeInternalError},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Errorf("%s: Code = %d, want %d", tc.name, tc.err.Code, tc.code)
		}
		if tc.err.Error() == "" {
			t.Errorf("%s: Error() returned empty string", tc.name)
		}
	}
}

func TestErrorWire(t *testing.T) {
	e := InvalidParams("bad schema", map[string]string{"field": "name"})
	w := e.wire()
	if w.Code != CodeInvalidParams || w.Message != "bad schema" {
		t.Fatalf("wire() = %+v, want code %d message %q", w, CodeInvalidParams, "bad schema")
	}
}

func TestProtocolMismatchError(t *testing.T) {
	e := protocolMismatchError(OldestProtocolVersion, ProtocolVersion("2099-01-01"))
	if e.Code != CodeProtocolMismatch {
		t.Fatalf("Code = %d, want %d", e.Code, CodeProtocolMismatch)
	}
	data, ok := e.Data.(map[string]string)
	if !ok {
		t.Fatalf("Data = %T, want map[string]string", e.Data)
	}
	if data["supportedVersion"] != string(OldestProtocolVersion) {
		t.Errorf("supportedVersion = %q, want %q", data["supportedVersion"], OldestProtocolVersion)
	}
	if data["requestedVersion"] != "2099-01-01" {
		t.Errorf("requestedVersion = %q, want %q", data["requestedVersion"], "2099-01-01")
	}
}

func TestVersionMismatchError(t *testing.T) {
	e := versionMismatchError(string(LatestProtocolVersion), "bogus")
	if e.Code != CodeInvalidParams {
		t.Fatalf("Code = %d, want %d", e.Code, CodeInvalidParams)
	}
}

func TestAsError(t *testing.T) {
	if asError(nil) != nil {
		t.Fatal("asError(nil) should be nil")
	}
	wrapped := asError(errors.New("plain"))
	if wrapped.Code != CodeInternalError {
		t.Fatalf("asError(plain) Code = %d, want %d", wrapped.Code, CodeInternalError)
	}
	original := InvalidParams("already typed", nil)
	if asError(original) != original {
		t.Fatal("asError should pass through an existing *Error unchanged")
	}
}
