// Package conduit is the top-level facade binding region, ring, doorbell,
// dispatch, control, messaging, and console into a single convenient entry
// point: construct a Transport once per process, Announce categories
// against it, Push/Pop records, and optionally attach console redirects.
//
// Grounded on agilira-lethe's own top-level package shape: lethe.go's
// constructor surface (New/NewWithDefaults/NewSimple, a handful of
// constructors around one core type) generalizes here into
// Initialize/Attach around one Transport type, rather than requiring a
// caller to wire messaging.Unit, control.Registry, and console.Redirect
// together by hand every time.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package conduit

import (
	"time"

	"github.com/agilira/conduit/console"
	"github.com/agilira/conduit/control"
	"github.com/agilira/conduit/messaging"
)

// Re-exported category kinds, so callers need only import this package for
// the common case.
const (
	Tracing           = control.Tracing
	Logging           = control.Logging
	Reporting         = control.Reporting
	OperationalStream = control.OperationalStream
)

// Settings is messaging.Settings, re-exported so callers can build one
// without a second import.
type Settings = messaging.Settings

// Record is messaging.Record, re-exported for the same reason.
type Record = messaging.Record

// Category is a live handle on a self-registered (kind, module, category)
// tuple, as returned by Announce.
type Category = control.Category

// Transport is the process-wide conduit handle: a messaging.Unit plus
// whichever console redirects the caller attaches to it.
type Transport struct {
	unit *messaging.Unit

	stdout *console.Redirect
	stderr *console.Redirect
}

// Initialize constructs the process-wide Transport, becoming the owning
// (consumer) side of its dispatch buffer. Call this once per deployment,
// from whichever process owns the buffer's lifetime.
func Initialize(settings Settings) (*Transport, error) {
	u, err := messaging.Initialize(settings)
	if err != nil {
		return nil, err
	}
	return &Transport{unit: u}, nil
}

// Attach binds to an already-initialized Transport's buffer from another
// process, as the producer side.
func Attach(settings Settings) (*Transport, error) {
	u, err := messaging.Attach(settings)
	if err != nil {
		return nil, err
	}
	return &Transport{unit: u}, nil
}

// Close tears down the transport: any attached console redirects, then the
// underlying messaging.Unit.
func (t *Transport) Close() error {
	if t.stdout != nil {
		_ = t.stdout.Close()
		t.stdout = nil
	}
	if t.stderr != nil {
		_ = t.stderr.Close()
		t.stderr = nil
	}
	if messaging.Instance() == t.unit {
		return messaging.Dispose()
	}
	return t.unit.Close()
}

// Announce registers a new category against this Transport's registry.
func (t *Transport) Announce(kind control.Kind, module, category string, defaultEnabled bool) *Category {
	return t.unit.Announce(kind, module, category, defaultEnabled)
}

// Push emits a record under cat.
func (t *Transport) Push(cat *Category, text string) error {
	return t.unit.Push(cat, text)
}

// Pop reads the next buffered record, if any.
func (t *Transport) Pop() (Record, bool, error) {
	return t.unit.Pop()
}

// Wait blocks until a Push makes the buffer non-empty, or timeout elapses.
func (t *Transport) Wait(timeout time.Duration) error {
	return t.unit.Wait(timeout)
}

// Categories returns a snapshot of every registered category.
func (t *Transport) Categories() []control.Entry {
	return t.unit.Categories()
}

// ApplyOverride merges a single policy entry into the transport's settings
// and re-derives every registered category's enabled state from it.
func (t *Transport) ApplyOverride(entry control.Entry) {
	t.unit.ApplyOverride(entry)
}

// RedirectStdout attaches a console.Redirect capturing os.Stdout through
// this transport. Calling it twice replaces the previous redirect.
func (t *Transport) RedirectStdout() error {
	if t.stdout != nil {
		_ = t.stdout.Close()
		t.stdout = nil
	}
	r, err := console.NewStdout(t.unit)
	if err != nil {
		return err
	}
	t.stdout = r
	return nil
}

// RedirectStderr attaches a console.Redirect capturing os.Stderr through
// this transport.
func (t *Transport) RedirectStderr() error {
	if t.stderr != nil {
		_ = t.stderr.Close()
		t.stderr = nil
	}
	r, err := console.NewStderr(t.unit)
	if err != nil {
		return err
	}
	t.stderr = r
	return nil
}

// Unit returns the underlying messaging.Unit, for callers that need direct
// access to a subpackage not mirrored on Transport (e.g. an RPCClient
// dialing its control socket from another process).
func (t *Transport) Unit() *messaging.Unit {
	return t.unit
}
