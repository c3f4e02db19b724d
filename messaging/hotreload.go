// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package messaging

import (
	"os"
	"time"

	"github.com/agilira/argus"

	"github.com/agilira/conduit/errs"
)

// WatchConfigFile watches path for changes and re-applies its contents as
// a category policy via ApplyOverride whenever it changes, without
// requiring a process restart. This is a best-effort convenience on top
// of the env-var-based Settings this package otherwise relies on - if
// argus isn't available in a given deployment, callers can simply not call
// this and fall back to Initialize/Attach with a fixed Settings value.
//
// path is expected to contain a Settings.Marshal-formatted line; every
// change event re-parses it and merges its Categories into the running
// Unit via ApplyOverride.
func (u *Unit) WatchConfigFile(path string) error {
	watcher, err := argus.New(argus.Config{
		PollInterval: time.Second,
	})
	if err != nil {
		return errs.Wrap(errs.KindUnavailable, "messaging: config watcher", err)
	}

	err = watcher.Watch(path, func(event argus.ChangeEvent) {
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return
		}
		parsed, perr := Parse(string(data))
		if perr != nil {
			return
		}
		for _, entry := range parsed.Categories {
			u.ApplyOverride(entry)
		}
	})
	if err != nil {
		return errs.Wrap(errs.KindUnavailable, "messaging: config watch", err)
	}

	if err := watcher.Start(); err != nil {
		return errs.Wrap(errs.KindUnavailable, "messaging: config watch start", err)
	}

	u.mu.Lock()
	u.configWatch = watcher
	u.mu.Unlock()
	return nil
}
