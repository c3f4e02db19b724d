// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package ring

// Cursor describes one candidate read or eviction starting at a snapshot of
// the tail, used by Policy hooks to look ahead into the buffer without
// committing to a size. It mirrors Source/core/CyclicBuffer.h's inner
// Cursor class, minus the template-parameterized Peek<T>/Forward that the
// original exposes for arbitrary element types - every caller in this port
// only ever needs a little-endian uint16 length prefix, so that's the only
// typed accessor kept.
type Cursor struct {
	buf    *Buffer
	tail   uint32 // snapshot of ctrl.tail when the cursor was created
	size   uint32 // bytes requested by the caller driving this lookahead
	offset uint32 // bytes already walked past the snapshot tail
}

func newCursor(buf *Buffer, tail, size uint32) *Cursor {
	return &Cursor{buf: buf, tail: tail, size: size}
}

// Size returns the number of bytes the caller is asking this cursor to
// satisfy (the read destination length, or the shortfall still needed
// during eviction).
func (c *Cursor) Size() uint32 { return c.size }

// Offset returns how far this cursor has already been walked forward.
func (c *Cursor) Offset() uint32 { return c.offset }

// Forward advances the cursor by n bytes without touching the buffer; a
// Policy hook calls this after inspecting a record header to skip past it.
func (c *Cursor) Forward(n uint32) { c.offset += n }

// PeekUint16 reads a little-endian uint16 at the cursor's current offset
// without advancing it or touching the live tail. Used by the dispatch
// package's Policy to read a record's length prefix while deciding how much
// to evict or return.
func (c *Cursor) PeekUint16() uint16 {
	ctrl := c.buf.ctrl
	base := (c.tail & ctrl.indexMask) + c.offset
	i0 := base % ctrl.size
	i1 := (base + 1) % ctrl.size
	return uint16(c.buf.payload[i0]) | uint16(c.buf.payload[i1])<<8
}

// CompleteTail recombines this cursor's snapshot round counter with an
// index-space offset into a full tail value, bumping the round counter
// modulo roundModulus when the offset wraps past size. Mirrors
// Cursor::GetCompleteTail in the original.
func (c *Cursor) CompleteTail(offset uint32) uint32 {
	ctrl := c.buf.ctrl
	round := c.tail / (ctrl.indexMask + 1)
	oldIdx := c.tail & ctrl.indexMask
	complete := (oldIdx + offset) % ctrl.size
	if complete < oldIdx {
		round = (round + 1) % ctrl.roundModulus
	}
	return complete | round*(ctrl.indexMask+1)
}
