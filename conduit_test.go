// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package conduit

import (
	"testing"

	"github.com/agilira/conduit/control"
)

func newTestSettings(t *testing.T) Settings {
	t.Helper()
	return Settings{
		BasePath:   t.TempDir(),
		Identifier: "facade-test",
	}
}

func TestInitializeAnnouncePushPop(t *testing.T) {
	tr, err := Initialize(newTestSettings(t))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer tr.Close()

	cat := tr.Announce(Logging, "core", "startup", true)
	if err := tr.Push(cat, "hello"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	rec, ok, err := tr.Pop()
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if !ok || rec.Text != "hello" {
		t.Fatalf("unexpected pop result: rec=%+v ok=%v", rec, ok)
	}
}

func TestApplyOverrideDisablesCategory(t *testing.T) {
	tr, err := Initialize(newTestSettings(t))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer tr.Close()

	cat := tr.Announce(Logging, "core", "noisy", true)
	tr.ApplyOverride(control.Entry{Kind: Logging, Module: "core", Category: "noisy", Enabled: false})

	if cat.IsEnabled() {
		t.Fatalf("expected category disabled after ApplyOverride")
	}
}

func TestRedirectStdoutAttachesAndCloses(t *testing.T) {
	tr, err := Initialize(newTestSettings(t))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer tr.Close()

	if err := tr.RedirectStdout(); err != nil {
		t.Fatalf("RedirectStdout: %v", err)
	}
	if tr.stdout == nil {
		t.Fatalf("expected stdout redirect attached")
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestCategoriesReflectsAnnouncements(t *testing.T) {
	tr, err := Initialize(newTestSettings(t))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer tr.Close()

	tr.Announce(Tracing, "core", "probe", true)
	entries := tr.Categories()
	found := false
	for _, e := range entries {
		if e.Module == "core" && e.Category == "probe" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected announced category in snapshot, got %+v", entries)
	}
}
