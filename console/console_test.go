// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package console

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/agilira/conduit/control"
	"github.com/agilira/conduit/messaging"
)

func newTestUnit(t *testing.T) *messaging.Unit {
	t.Helper()
	dir := t.TempDir()
	u, err := messaging.Initialize(messaging.Settings{
		BasePath:   dir,
		Identifier: "console-test",
	})
	if err != nil {
		t.Fatalf("messaging.Initialize: %v", err)
	}
	t.Cleanup(func() { _ = messaging.Dispose() })
	return u
}

func TestStdoutRedirectCapturesLines(t *testing.T) {
	u := newTestUnit(t)

	r, err := NewStdout(u)
	if err != nil {
		t.Fatalf("NewStdout: %v", err)
	}

	fmt.Fprintln(os.Stdout, "hello from stdout")

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rec, ok, err := popWithin(u, time.Second)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if !ok {
		t.Fatalf("expected a captured record")
	}
	if rec.Category != CategoryStandardOut || rec.Text != "hello from stdout" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Kind != control.OperationalStream {
		t.Fatalf("expected OperationalStream kind, got %v", rec.Kind)
	}
}

func TestStderrRedirectCapturesLines(t *testing.T) {
	u := newTestUnit(t)

	r, err := NewStderr(u)
	if err != nil {
		t.Fatalf("NewStderr: %v", err)
	}

	fmt.Fprintln(os.Stderr, "hello from stderr")

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rec, ok, err := popWithin(u, time.Second)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if !ok {
		t.Fatalf("expected a captured record")
	}
	if rec.Category != CategoryStandardErr {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestCloseRestoresOriginalStream(t *testing.T) {
	u := newTestUnit(t)
	original := os.Stdout

	r, err := NewStdout(u)
	if err != nil {
		t.Fatalf("NewStdout: %v", err)
	}
	if os.Stdout == original {
		t.Fatalf("expected os.Stdout to be replaced while redirect is active")
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if os.Stdout != original {
		t.Fatalf("expected os.Stdout restored after Close")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	u := newTestUnit(t)
	r, err := NewStdout(u)
	if err != nil {
		t.Fatalf("NewStdout: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func popWithin(u *messaging.Unit, timeout time.Duration) (messaging.Record, bool, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		rec, ok, err := u.Pop()
		if err != nil || ok {
			return rec, ok, err
		}
		time.Sleep(5 * time.Millisecond)
	}
	return messaging.Record{}, false, nil
}
