// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package messaging

import (
	"os"
	"testing"

	"github.com/agilira/conduit/control"
)

func TestMarshalParseRoundTrip(t *testing.T) {
	s := Settings{
		BasePath:     "/tmp/conduit",
		Identifier:   "svc1",
		SocketPort:   9100,
		DirectOutput: true,
		Categories: []control.Entry{
			{Kind: control.Logging, Module: "core", Category: "startup", Enabled: true},
			{Kind: control.Tracing, Module: "", Category: "", Enabled: false},
		},
	}

	raw := s.Marshal()
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got.BasePath != s.BasePath || got.Identifier != s.Identifier || got.SocketPort != s.SocketPort || got.DirectOutput != s.DirectOutput {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Categories) != len(s.Categories) {
		t.Fatalf("category count mismatch: got %d want %d", len(got.Categories), len(s.Categories))
	}
	for i := range s.Categories {
		if got.Categories[i] != s.Categories[i] {
			t.Fatalf("category %d mismatch: got %+v want %+v", i, got.Categories[i], s.Categories[i])
		}
	}
}

func TestParseRejectsTooFewFields(t *testing.T) {
	if _, err := Parse("onlyonefield"); err == nil {
		t.Fatalf("expected error for malformed settings")
	}
}

func TestEnvRoundTrip(t *testing.T) {
	s := Settings{BasePath: "/tmp/conduit", Identifier: "svc2", SocketPort: 0, DirectOutput: false}
	if err := s.ExportToEnv(); err != nil {
		t.Fatalf("ExportToEnv: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv(EnvVar) })

	got, ok := LoadFromEnv()
	if !ok {
		t.Fatalf("LoadFromEnv: ok=false")
	}
	if got.Identifier != "svc2" {
		t.Fatalf("LoadFromEnv got %+v", got)
	}
}
