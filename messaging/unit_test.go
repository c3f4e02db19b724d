// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package messaging

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/agilira/conduit/control"
)

func newTestSettings(t *testing.T) Settings {
	t.Helper()
	dir := t.TempDir()
	return Settings{
		BasePath:   dir,
		Identifier: "unit-test",
		Categories: []control.Entry{
			{Kind: control.Logging, Module: "", Category: "", Enabled: true},
		},
	}
}

func TestInitializeRejectsDoubleInitialization(t *testing.T) {
	s := newTestSettings(t)
	u, err := Initialize(s)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = Dispose() })

	if _, err := Initialize(s); err == nil {
		t.Fatalf("expected error on double Initialize")
	}
	if Instance() != u {
		t.Fatalf("Instance() did not return the initialized Unit")
	}
}

func TestPushPopBufferedMode(t *testing.T) {
	s := newTestSettings(t)
	u, err := Initialize(s)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = Dispose() })

	cat := u.Announce(control.Logging, "core", "startup", true)
	if err := u.Push(cat, "booting"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	rec, ok, err := u.Pop()
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if !ok {
		t.Fatalf("expected a record")
	}
	if rec.Text != "booting" || rec.Module != "core" || rec.Category != "startup" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestPushSkipsDisabledCategory(t *testing.T) {
	s := newTestSettings(t)
	u, err := Initialize(s)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = Dispose() })

	cat := u.Announce(control.Logging, "core", "quiet", false)
	if err := u.Push(cat, "should not appear"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	_, ok, err := u.Pop()
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if ok {
		t.Fatalf("expected no record for a disabled category")
	}
}

func TestDefaultReflectsWildcardSetting(t *testing.T) {
	s := newTestSettings(t)
	u, err := Initialize(s)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = Dispose() })

	if !u.Default(control.Logging, "core", "anything") {
		t.Fatalf("expected Logging's wildcard default to be enabled")
	}
	if u.Default(control.Tracing, "core", "anything") {
		t.Fatalf("expected Tracing to have no default override")
	}
}

func TestDefaultPrefersMostSpecificEntry(t *testing.T) {
	s := newTestSettings(t)
	s.Categories = append(s.Categories,
		control.Entry{Kind: control.Logging, Module: "core", Category: "", Enabled: false},
		control.Entry{Kind: control.Logging, Module: "core", Category: "quiet", Enabled: true},
	)
	u, err := Initialize(s)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = Dispose() })

	if !u.Default(control.Logging, "core", "quiet") {
		t.Fatalf("expected the exact module+category entry to win over the module-only entry")
	}
	if u.Default(control.Logging, "core", "verbose") {
		t.Fatalf("expected the module-only entry to win over the wildcard for a different category")
	}
	if !u.Default(control.Logging, "other", "anything") {
		t.Fatalf("expected the wildcard entry to apply outside the core module")
	}
}

func TestApplyOverrideAffectsAnnouncedCategories(t *testing.T) {
	s := newTestSettings(t)
	u, err := Initialize(s)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = Dispose() })

	cat := u.Announce(control.Logging, "core", "startup", true)
	u.ApplyOverride(control.Entry{Kind: control.Logging, Module: "core", Category: "startup", Enabled: false})

	if cat.IsEnabled() {
		t.Fatalf("expected ApplyOverride to disable the matching category")
	}
}

func TestRPCListAndUpdate(t *testing.T) {
	s := newTestSettings(t)
	u, err := Initialize(s)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = Dispose() })

	cat := u.Announce(control.Logging, "core", "rpc", true)
	_ = cat

	client, err := DialRPC(filepath.Join(s.BasePath, s.Identifier+".rpc"))
	if err != nil {
		t.Fatalf("DialRPC: %v", err)
	}
	defer client.Close()

	entries, err := client.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Module == "core" && e.Category == "rpc" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected announced category in RPC list, got %+v", entries)
	}

	if err := client.Update(control.Entry{Kind: control.Logging, Module: "core", Category: "rpc", Enabled: false}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Give the server goroutine a moment to apply the override.
	time.Sleep(20 * time.Millisecond)
	if cat.IsEnabled() {
		t.Fatalf("expected RPC Update to disable the category")
	}
}
