// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package messaging

import (
	"testing"
	"time"

	"github.com/agilira/conduit/control"
)

func TestEncodeDecodeRecordRoundTrip(t *testing.T) {
	ts := time.Unix(1234567890, 42)
	buf := encodeRecord(control.Logging, "core", "startup", ts, "hello world")

	rec, err := decodeRecord(buf)
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if rec.Kind != control.Logging || rec.Module != "core" || rec.Category != "startup" || rec.Text != "hello world" {
		t.Fatalf("decoded record mismatch: %+v", rec)
	}
	if !rec.Timestamp.Equal(ts) {
		t.Fatalf("timestamp mismatch: got %v want %v", rec.Timestamp, ts)
	}
}

func TestDecodeRecordRejectsTruncatedHeader(t *testing.T) {
	if _, err := decodeRecord([]byte{byte(control.Logging)}); err == nil {
		t.Fatalf("expected error for truncated record")
	}
}

func TestEncodeDecodeEmptyText(t *testing.T) {
	ts := time.Unix(1, 0)
	buf := encodeRecord(control.Tracing, "m", "c", ts, "")
	rec, err := decodeRecord(buf)
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if rec.Text != "" {
		t.Fatalf("expected empty text, got %q", rec.Text)
	}
}
