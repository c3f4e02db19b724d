// Package region implements the mapped-region provider: the one external
// collaborator the cyclic buffer actually needs concrete code for in this
// port. It creates or opens a file-backed shared memory region and hands
// back a writable byte slice that multiple unrelated processes can attach
// to at the same path.
//
// Grounded on Source/core/DataElementFile.cpp/.h and SharedBuffer.cpp/.h
// (mmap-backed shared file) and the other_examples mmap-over-/dev/shm
// pattern; retry/permission handling follows agilira-lethe's rotation.go
// and config.go conventions.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package region

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/agilira/conduit/errs"
	"github.com/agilira/conduit/fsutil"
)

// DefaultMode is applied when no explicit Mode is given: read/write for
// user, group and others, matching spec section 6's "shareable" default.
const DefaultMode = os.FileMode(0666)

// Region is a file-backed shared memory mapping. The first process to call
// Create becomes the initiator; every other process calls Open (or Create
// with the same size, which degrades to attach-only when the file already
// has the right size) to attach to the same bytes.
type Region struct {
	mu        sync.Mutex
	file      *os.File
	data      []byte
	path      string
	size      uint32
	initiator bool
	closeOnce sync.Once
}

// pageSize is cached once; mmap requires offsets page-aligned, and rounding
// the requested size up to a page avoids surprising truncation on reopen.
var pageSize = os.Getpagesize()

func roundToPage(n uint32) uint32 {
	ps := uint32(pageSize)
	if ps == 0 {
		return n
	}
	rem := n % ps
	if rem == 0 {
		return n
	}
	return n + (ps - rem)
}

// Create makes (or re-attaches to) a region of at least size bytes at path.
// Permission defaults to DefaultMode; pass mode > 0 to override. The caller
// becomes the initiator only when the file did not already exist at the
// requested size - re-running Create against an existing, correctly sized
// region attaches without re-zeroing it, mirroring DataElementFile's
// "CREATE" flag semantics of growing-or-opening.
func Create(path string, size uint32, mode os.FileMode) (*Region, bool, error) {
	if size == 0 {
		return nil, false, errs.New(errs.KindIllegalState, "region: size must be non-zero")
	}
	if mode == 0 {
		mode = DefaultMode
	}

	aligned := roundToPage(size)

	existed := false
	if info, err := os.Stat(path); err == nil {
		existed = true
		if uint32(info.Size()) < aligned {
			existed = false // stale/undersized file, treat as fresh initiator
		}
	}

	var f *os.File
	openErr := fsutil.RetryFileOperation(func() error {
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_RDWR, mode) // #nosec G304 -- path supplied by caller of this library, not untrusted input
		return err
	}, 3, 10*time.Millisecond)
	if openErr != nil {
		return nil, false, errs.Wrap(errs.KindIllegalState, fmt.Sprintf("region: open %q", path), openErr)
	}

	if !existed {
		if err := f.Truncate(int64(aligned)); err != nil {
			_ = f.Close()
			return nil, false, errs.Wrap(errs.KindIllegalState, "region: truncate", err)
		}
	}

	data, err := mmapFile(f, int(aligned))
	if err != nil {
		_ = f.Close()
		return nil, false, errs.Wrap(errs.KindIllegalState, "region: mmap", err)
	}

	r := &Region{
		file:      f,
		data:      data,
		path:      path,
		size:      aligned,
		initiator: !existed,
	}
	return r, r.initiator, nil
}

// Open attaches to an already-created region; it never creates the file
// and never zeroes it.
func Open(path string) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0) // #nosec G304 -- path supplied by caller of this library
	if err != nil {
		return nil, errs.Wrap(errs.KindIllegalState, fmt.Sprintf("region: open %q", path), err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errs.Wrap(errs.KindIllegalState, "region: stat", err)
	}
	size := uint32(info.Size())

	data, err := mmapFile(f, int(size))
	if err != nil {
		_ = f.Close()
		return nil, errs.Wrap(errs.KindIllegalState, "region: mmap", err)
	}

	return &Region{file: f, data: data, path: path, size: size}, nil
}

// Bytes returns the writable byte slice backing the region. Every attached
// process observes writes made through this slice by any other attached
// process without further copying.
func (r *Region) Bytes() []byte {
	return r.data
}

// Size returns the mapped region's byte length, page-rounded.
func (r *Region) Size() uint32 {
	return r.size
}

// Name returns the backing file path.
func (r *Region) Name() string {
	return r.path
}

// IsInitiator reports whether this Region instance created the backing
// file (as opposed to attaching to one another process created).
func (r *Region) IsInitiator() bool {
	return r.initiator
}

// Sync flushes the mapped pages to the backing file. Not required for
// cross-process visibility (the mapping itself provides that) but useful
// before a clean shutdown.
func (r *Region) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		return nil
	}
	return msync(r.data)
}

// Chmod changes the backing file's permission bits. Best-effort on
// platforms without POSIX permission bits.
func (r *Region) Chmod(mode os.FileMode) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	return os.Chmod(r.path, mode)
}

// Chown changes the backing file's owning user and group. Best-effort on
// platforms without POSIX ownership (a no-op on Windows), mirroring Chmod.
func (r *Region) Chown(uid, gid int) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	return os.Chown(r.path, uid, gid)
}

// Close unmaps the region and closes the backing descriptor. Safe to call
// more than once.
func (r *Region) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.data != nil {
			err = munmap(r.data)
			r.data = nil
		}
		if r.file != nil {
			if cerr := r.file.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}

// Remove deletes the backing file from disk. Intended for the initiator's
// teardown path once every attacher has detached.
func (r *Region) Remove() error {
	return os.Remove(r.path)
}

func mmapFile(f *os.File, size int) ([]byte, error) {
	return syscall.Mmap(int(f.Fd()), 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
}

func munmap(data []byte) error {
	return syscall.Munmap(data)
}

const msSync = 0x4 // MS_SYNC

func msync(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	// Best-effort flush; the mapping already guarantees cross-process
	// visibility without this, so errors here are informational only.
	_, _, errno := syscall.Syscall(syscall.SYS_MSYNC, uintptr(unsafe.Pointer(&data[0])), uintptr(len(data)), msSync)
	if errno != 0 {
		return errno
	}
	return nil
}

// WaitExists polls for path to appear, used by an attacher that may race
// the initiator's Create. Returns an errs.KindTimeout error if the deadline
// elapses first.
func WaitExists(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.KindTimeout, fmt.Sprintf("region: %q never appeared", path))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
