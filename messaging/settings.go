// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package messaging

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/agilira/conduit/control"
	"github.com/agilira/conduit/errs"
	"github.com/agilira/conduit/fsutil"
)

// EnvVar is the environment variable a child process inherits its
// messaging configuration through, letting it attach to the same buffers
// and category policy as the process that spawned it without a config
// file.
const EnvVar = "CONDUIT_MESSAGING"

// Settings describes where a MessageUnit's buffers live and how it should
// behave, plus the category policy to apply on startup.
type Settings struct {
	BasePath     string
	Identifier   string
	SocketPort   uint16
	DirectOutput bool // true: human-readable lines to stdout; false: buffered binary records
	Categories   []control.Entry
}

// Marshal serializes Settings into the pipe-delimited wire format:
// basePath|identifier|socketPort|modeBits|(kind|module|category|enabled)*
func (s Settings) Marshal() string {
	var b strings.Builder
	mode := 0
	if s.DirectOutput {
		mode = 1
	}
	fmt.Fprintf(&b, "%s|%s|%d|%d", s.BasePath, s.Identifier, s.SocketPort, mode)
	for _, e := range s.Categories {
		enabled := 0
		if e.Enabled {
			enabled = 1
		}
		fmt.Fprintf(&b, "|%d|%s|%s|%d", e.Kind, e.Module, e.Category, enabled)
	}
	return b.String()
}

// Parse reverses Marshal. Returns an error if raw doesn't have at least
// the four mandatory fields, or if the trailing category fields aren't a
// multiple of four.
func Parse(raw string) (Settings, error) {
	parts := strings.Split(raw, "|")
	if len(parts) < 4 {
		return Settings{}, errs.New(errs.KindIllegalState, "messaging: settings: too few fields")
	}

	port, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return Settings{}, errs.Wrap(errs.KindIllegalState, "messaging: settings: socket port", err)
	}
	mode, err := strconv.Atoi(parts[3])
	if err != nil {
		return Settings{}, errs.Wrap(errs.KindIllegalState, "messaging: settings: mode bits", err)
	}

	s := Settings{
		BasePath:     parts[0],
		Identifier:   parts[1],
		SocketPort:   uint16(port),
		DirectOutput: mode&1 != 0,
	}

	rest := parts[4:]
	if len(rest)%4 != 0 {
		return Settings{}, errs.New(errs.KindIllegalState, "messaging: settings: malformed category list")
	}
	for i := 0; i < len(rest); i += 4 {
		kind, err := strconv.Atoi(rest[i])
		if err != nil {
			return Settings{}, errs.Wrap(errs.KindIllegalState, "messaging: settings: category kind", err)
		}
		enabled, err := strconv.ParseBool(rest[i+3])
		if err != nil {
			return Settings{}, errs.Wrap(errs.KindIllegalState, "messaging: settings: category enabled flag", err)
		}
		s.Categories = append(s.Categories, control.Entry{
			Kind:     control.Kind(kind),
			Module:   rest[i+1],
			Category: rest[i+2],
			Enabled:  enabled,
		})
	}
	return s, nil
}

// LoadFromEnv reads Settings from EnvVar, returning ok=false if it's unset
// or malformed.
func LoadFromEnv() (s Settings, ok bool) {
	raw := os.Getenv(EnvVar)
	if raw == "" {
		return Settings{}, false
	}
	s, err := Parse(raw)
	if err != nil {
		return Settings{}, false
	}
	return s, true
}

// ExportToEnv publishes s to EnvVar for a child process to inherit.
func (s Settings) ExportToEnv() error {
	return os.Setenv(EnvVar, s.Marshal())
}

// safeIdentifier sanitizes Identifier into a safe path component and
// validates the resulting path length, mirroring
// MessageDispatcher::PrepareFilenames, which performs the equivalent
// cleanup before deriving its data/metadata/doorbell file names.
func (s Settings) safeIdentifier(suffix string) (string, error) {
	id := fsutil.SanitizeFilename(s.Identifier)
	path := s.BasePath + "/" + id + suffix
	if err := fsutil.ValidatePathLength(path); err != nil {
		return "", errs.Wrap(errs.KindIllegalState, "messaging: settings: path", err)
	}
	return path, nil
}

// ringPath returns the filesystem path Settings expects the dispatch
// buffer's backing ring to live at, mirroring
// MessageDispatcher::PrepareFilenames' data-file naming.
func (s Settings) ringPath() string {
	p, err := s.safeIdentifier(".data")
	if err != nil {
		return s.BasePath + "/" + s.Identifier + ".data"
	}
	return p
}

// doorbellPath returns the filesystem path for the doorbell socket, used
// when SocketPort is zero.
func (s Settings) doorbellPath() string {
	p, err := s.safeIdentifier(".doorbell")
	if err != nil {
		return s.BasePath + "/" + s.Identifier + ".doorbell"
	}
	return p
}

// rpcPath returns the filesystem path for the category RPC socket.
func (s Settings) rpcPath() string {
	p, err := s.safeIdentifier(".rpc")
	if err != nil {
		return s.BasePath + "/" + s.Identifier + ".rpc"
	}
	return p
}
