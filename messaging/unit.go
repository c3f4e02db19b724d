// Package messaging implements MessageUnit: the process-wide facade that
// binds Settings, a control.Registry, and a dispatch.Buffer together, plus
// a small RPC endpoint for listing and toggling categories remotely.
//
// Grounded on Source/messaging/MessageUnit.h/.cpp and Control.h: a single
// process-wide instance (Initialize/Instance/Dispose here, matching the
// original's lazily-constructed singleton with an explicit teardown), a
// Push operation that branches between direct human-readable output and
// buffered binary records depending on configured mode, and
// Default/ApplyOverride operations mirroring the original's policy-query and remote-toggle
// surface.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package messaging

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/agilira/argus"
	"github.com/agilira/conduit/control"
	"github.com/agilira/conduit/dispatch"
	"github.com/agilira/conduit/errs"

	timecache "github.com/agilira/go-timecache"
)

const defaultBufferSize = 64 * 1024

// Unit is the process-wide message pipeline: category policy, the
// dispatch buffer backing it, and (optionally) a remote control endpoint.
type Unit struct {
	mu sync.Mutex

	settings Settings
	registry *control.Registry
	buffer   *dispatch.Buffer

	rpcListener net.Listener
	configWatch *argus.Watcher

	now func() time.Time
}

var (
	instanceMu sync.Mutex
	instance   *Unit
)

// Initialize constructs the process-wide MessageUnit from settings,
// becoming the consumer side of its dispatch buffer (binding the doorbell
// rather than connecting to it). Call this once, from whichever process
// owns the buffer's lifetime; other processes attach via Attach instead.
// Returns KindIllegalState if called twice without an intervening Dispose.
func Initialize(settings Settings) (*Unit, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil {
		return nil, errs.New(errs.KindIllegalState, "messaging: already initialized")
	}

	buf, err := openBuffer(settings, true)
	if err != nil {
		return nil, err
	}

	u := &Unit{
		settings: settings,
		registry: control.NewRegistry(),
		buffer:   buf,
		now:      timecache.Now,
	}
	u.registry.Rebuild(settings.Categories)

	if err := u.serveRPC(settings.rpcPath()); err != nil {
		_ = buf.Relinquish()
		return nil, err
	}

	instance = u
	return u, nil
}

// Attach binds to an already-initialized MessageUnit's buffer from another
// process, as the producer side. Categories pushed through the returned
// Unit are still filtered by the *local* registry: call ApplyOverride or
// rely on the Settings this Unit was constructed with to keep it in sync,
// or poll List via an RPCClient against the owning process.
func Attach(settings Settings) (*Unit, error) {
	buf, err := openBuffer(settings, false)
	if err != nil {
		return nil, err
	}
	u := &Unit{
		settings: settings,
		registry: control.NewRegistry(),
		buffer:   buf,
		now:      timecache.Now,
	}
	u.registry.Rebuild(settings.Categories)
	return u, nil
}

func openBuffer(settings Settings, consumer bool) (*dispatch.Buffer, error) {
	size := uint32(defaultBufferSize)
	if consumer {
		if settings.SocketPort != 0 {
			return dispatch.NewTCP(settings.ringPath(), size, true, int(settings.SocketPort))
		}
		return dispatch.New(settings.ringPath(), size, true, settings.doorbellPath())
	}
	if settings.SocketPort != 0 {
		return dispatch.AttachTCP(settings.ringPath(), int(settings.SocketPort))
	}
	return dispatch.Attach(settings.ringPath(), settings.doorbellPath())
}

// Instance returns the process-wide MessageUnit constructed by
// Initialize, or nil if none has been initialized yet.
func Instance() *Unit {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance
}

// Dispose tears down the process-wide MessageUnit: stops the RPC
// listener, any config watcher, and releases the dispatch buffer.
func Dispose() error {
	instanceMu.Lock()
	u := instance
	instance = nil
	instanceMu.Unlock()
	if u == nil {
		return nil
	}
	return u.Close()
}

// Close releases this Unit's resources: the RPC listener (if serving),
// the config watcher (if one was started), and the dispatch buffer.
func (u *Unit) Close() error {
	u.mu.Lock()
	ln := u.rpcListener
	watcher := u.configWatch
	u.rpcListener = nil
	u.configWatch = nil
	u.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	if watcher != nil {
		_ = watcher.Stop()
	}
	return u.buffer.Relinquish()
}

// Announce registers a new category against this Unit's registry. Mirrors
// a ControlType subclass's constructor calling
// MessageUnit::Instance().Announce(this).
func (u *Unit) Announce(kind control.Kind, module, category string, defaultEnabled bool) *control.Category {
	return u.registry.Announce(kind, module, category, defaultEnabled)
}

// Default reports whether (kind, module, category) is enabled under this
// Unit's current settings, taking the matching entry with the highest
// specificity - an exact module/category match wins over a module-only
// match, which wins over the all-wildcard entry. Mirrors
// Control.h's default(control) consulting Settings.is_enabled() with the
// same most-specific-wins rule the registry itself applies in Rebuild.
func (u *Unit) Default(kind control.Kind, module, category string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	var best control.Entry
	bestSpecificity := -1
	found := false
	for _, e := range u.settings.Categories {
		if e.Kind != kind {
			continue
		}
		if e.Module != "" && e.Module != module {
			continue
		}
		if e.Category != "" && e.Category != category {
			continue
		}
		sp := 0
		if e.Module != "" {
			sp++
		}
		if e.Category != "" {
			sp++
		}
		if sp >= bestSpecificity {
			best = e
			bestSpecificity = sp
			found = true
		}
	}
	return found && best.Enabled
}

// ApplyOverride merges a single policy entry into this Unit's settings and
// re-derives every registered category's enabled state from the result.
func (u *Unit) ApplyOverride(entry control.Entry) {
	u.mu.Lock()
	u.settings.Categories = append(u.settings.Categories, entry)
	categories := append([]control.Entry(nil), u.settings.Categories...)
	u.mu.Unlock()
	u.registry.Rebuild(categories)
}

// Categories returns a snapshot of every registered category.
func (u *Unit) Categories() []control.Entry {
	return u.registry.Snapshot()
}

// Push emits a record under cat, doing nothing if cat is disabled. In
// direct-output mode it writes a human-readable line to stdout; in
// buffered mode it encodes the record onto the dispatch buffer.
func (u *Unit) Push(cat *control.Category, text string) error {
	if !cat.IsEnabled() {
		return nil
	}
	ts := u.now()

	u.mu.Lock()
	direct := u.settings.DirectOutput
	u.mu.Unlock()

	if direct {
		line := fmt.Sprintf("[%s] [%s] [%s:%s] %s\n",
			ts.Format(time.RFC3339Nano), cat.Kind(), cat.Module(), cat.Name(), text)
		_, err := os.Stdout.WriteString(line)
		if err != nil {
			return errs.Wrap(errs.KindWriteError, "messaging: push: direct output", err)
		}
		return nil
	}

	record := encodeRecord(cat.Kind(), cat.Module(), cat.Name(), ts, text)
	if err := u.buffer.Push(record); err != nil {
		return errs.Wrap(errs.KindWriteError, "messaging: push: buffered record", err)
	}
	return nil
}

// Pop reads the next buffered record, if any. Returns (Record{}, false,
// nil) when the buffer is empty. On errs.KindTruncated, n is the record's
// full required length (see dispatch.Buffer.Pop), which may exceed len(buf)
// - the record is already lost at that point, so it is reported as an error
// without attempting to decode a partial buffer.
func (u *Unit) Pop() (Record, bool, error) {
	buf := make([]byte, 64*1024)
	n, err := u.buffer.Pop(buf)
	if err != nil {
		return Record{}, false, err
	}
	if n == 0 {
		return Record{}, false, nil
	}
	rec, derr := decodeRecord(buf[:n])
	if derr != nil {
		return Record{}, false, derr
	}
	return rec, true, nil
}

// Wait blocks until a Push makes the buffer non-empty, or timeout
// elapses.
func (u *Unit) Wait(timeout time.Duration) error {
	return u.buffer.Wait(timeout)
}
