// Package dispatch implements the message dispatch buffer: a ring.Buffer
// carrying length-prefixed records plus a doorbell.Doorbell that rings
// whenever a push makes the buffer non-empty. This is the transport the
// messaging package pushes categorized records onto and the reader side
// pops them back off of.
//
// Grounded on Source/messaging/MessageDispatcher.h's MessageDataBufferType:
// its inner DataBuffer overrides CyclicBuffer's GetOverwriteSize (skip
// whole records while evicting) and GetReadSize (peek the length prefix,
// return the payload length), and the outer class's PushData/PopData wrap
// Reserve/Write and Read with the "u16 fullLength || payload" framing and
// ring the doorbell after every push.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package dispatch

import (
	"encoding/binary"
	"time"

	"github.com/agilira/conduit/doorbell"
	"github.com/agilira/conduit/errs"
	"github.com/agilira/conduit/ring"
)

// maxRecordLength is the largest payload PushData can carry: the 2-byte
// length prefix stores fullLength = 2+len(payload) as a uint16.
const maxRecordLength = 0xFFFF - 2

// framingPolicy teaches ring.Buffer to evict and read whole
// length-prefixed records instead of raw bytes.
type framingPolicy struct{}

// OverwriteSize walks whole records (peek the fullLength prefix, skip it)
// until at least cursor.Size() bytes have been covered, so eviction never
// lands mid-record. Mirrors DataBuffer::GetOverwriteSize.
func (framingPolicy) OverwriteSize(cursor *ring.Cursor) uint32 {
	var covered uint32
	for covered < cursor.Size() {
		fullLength := cursor.PeekUint16()
		if fullLength < 2 {
			fullLength = 2 // corrupt/zero-length record: skip the prefix itself, not nothing
		}
		cursor.Forward(uint32(fullLength))
		covered += uint32(fullLength)
	}
	return covered
}

// ReadSize peeks the next record's fullLength prefix, advances the cursor
// past it, and returns the payload length (fullLength minus the prefix
// itself). Mirrors DataBuffer::GetReadSize.
func (framingPolicy) ReadSize(cursor *ring.Cursor) uint32 {
	fullLength := cursor.PeekUint16()
	cursor.Forward(2)
	if fullLength < 2 {
		return 0
	}
	return uint32(fullLength) - 2
}

// Buffer is one process's attachment to a message dispatch channel: a
// framed ring.Buffer plus a doorbell for cross-process wakeups. Every
// constructor binds (consumer side) or connects (producer side) the
// doorbell; there is no doorbell-less variant.
type Buffer struct {
	ring *ring.Buffer
	bell *doorbell.Doorbell
}

// New creates (or attaches to) the dispatch buffer's backing ring at
// ringPath, and binds a doorbell at bellPath for this side to Wait on.
// Use this from the consumer process.
func New(ringPath string, size uint32, overwrite bool, bellPath string) (*Buffer, error) {
	rb, err := ring.New(ringPath, size, overwrite, framingPolicy{})
	if err != nil {
		return nil, errs.Wrap(errs.KindIllegalState, "dispatch: open ring", err)
	}
	bell, err := doorbell.Open(bellPath)
	if err != nil {
		_ = rb.Close()
		return nil, errs.Wrap(errs.KindIllegalState, "dispatch: open doorbell", err)
	}
	b := &Buffer{ring: rb, bell: bell}
	rb.SetDataAvailable(func() { _ = bell.Ring() })
	return b, nil
}

// Attach attaches to an existing dispatch buffer for pushing records. Use
// this from a producer process; it connects to (rather than binds) the
// doorbell.
func Attach(ringPath, bellPath string) (*Buffer, error) {
	rb, err := ring.Open(ringPath, framingPolicy{})
	if err != nil {
		return nil, errs.Wrap(errs.KindIllegalState, "dispatch: attach ring", err)
	}
	bell, err := doorbell.Connect(bellPath)
	if err != nil {
		_ = rb.Close()
		return nil, errs.Wrap(errs.KindIllegalState, "dispatch: connect doorbell", err)
	}
	b := &Buffer{ring: rb, bell: bell}
	rb.SetDataAvailable(func() { _ = bell.Ring() })
	return b, nil
}

// NewTCP is New's loopback-UDP-doorbell variant, for deployments where a
// shared filesystem socket path isn't reachable across namespaces.
func NewTCP(ringPath string, size uint32, overwrite bool, bellPort int) (*Buffer, error) {
	rb, err := ring.New(ringPath, size, overwrite, framingPolicy{})
	if err != nil {
		return nil, errs.Wrap(errs.KindIllegalState, "dispatch: open ring", err)
	}
	bell, err := doorbell.OpenTCP(bellPort)
	if err != nil {
		_ = rb.Close()
		return nil, errs.Wrap(errs.KindIllegalState, "dispatch: open doorbell", err)
	}
	b := &Buffer{ring: rb, bell: bell}
	rb.SetDataAvailable(func() { _ = bell.Ring() })
	return b, nil
}

// AttachTCP is Attach's loopback-UDP-doorbell variant.
func AttachTCP(ringPath string, bellPort int) (*Buffer, error) {
	rb, err := ring.Open(ringPath, framingPolicy{})
	if err != nil {
		return nil, errs.Wrap(errs.KindIllegalState, "dispatch: attach ring", err)
	}
	bell, err := doorbell.ConnectTCP(bellPort)
	if err != nil {
		_ = rb.Close()
		return nil, errs.Wrap(errs.KindIllegalState, "dispatch: connect doorbell", err)
	}
	b := &Buffer{ring: rb, bell: bell}
	rb.SetDataAvailable(func() { _ = bell.Ring() })
	return b, nil
}

// Push frames data as a length-prefixed record and writes it atomically
// (via Reserve, so a concurrent writer in this process never interleaves
// with it), then rings the doorbell if the buffer was empty. Mirrors
// MessageDataBufferType::PushData.
func (b *Buffer) Push(data []byte) error {
	if len(data) > maxRecordLength {
		return errs.New(errs.KindWriteError, "dispatch: record exceeds maximum length")
	}
	fullLength := uint16(2 + len(data))

	actual, err := b.ring.Reserve(uint32(fullLength))
	if err != nil {
		return err
	}
	if actual < uint32(fullLength) {
		return errs.New(errs.KindWriteError, "dispatch: reservation truncated by buffer capacity")
	}

	var hdr [2]byte
	binary.LittleEndian.PutUint16(hdr[:], fullLength)
	if _, err := b.ring.Write(hdr[:]); err != nil {
		return err
	}
	if len(data) > 0 {
		if _, err := b.ring.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// Pop reads the next record into dst. If dst is too small to hold the
// whole payload, the record is still consumed (dst receives as many bytes
// as fit) and errs.KindTruncated is returned alongside the record's full
// required length, not the number of bytes written to dst, so the caller
// can size a new buffer and isn't tempted to re-slice dst past its own
// length - mirrors PopData's truncation detection and CyclicBuffer::Read
// always returning the full record size. Returns (0, nil) if the buffer is
// empty.
func (b *Buffer) Pop(dst []byte) (int, error) {
	return b.ring.Read(dst, true)
}

// Wait blocks until Ring is called by a producer (directly, or indirectly
// via a push that made the buffer non-empty), or timeout elapses.
func (b *Buffer) Wait(timeout time.Duration) error {
	return b.bell.Wait(timeout)
}

// Ring wakes a consumer blocked in Wait without pushing a record -
// used to signal out-of-band conditions such as shutdown.
func (b *Buffer) Ring() error {
	return b.bell.Ring()
}

// Flush discards every unread record.
func (b *Buffer) Flush() {
	b.ring.Flush()
}

// Relinquish releases the doorbell and the ring attachment. Use on
// detach/shutdown.
func (b *Buffer) Relinquish() error {
	berr := b.bell.Relinquish()
	rerr := b.ring.Close()
	if berr != nil {
		return berr
	}
	return rerr
}

// Overwritten reports whether a push has evicted unread records since the
// last call.
func (b *Buffer) Overwritten() bool {
	return b.ring.Overwritten()
}
