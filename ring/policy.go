// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package ring

// Policy customizes how a Buffer decides eviction and read sizes, mirroring
// the virtual GetOverwriteSize/GetReadSize hooks CyclicBuffer exposes for
// subclasses to override. The default policy treats the buffer as an
// undifferentiated byte stream; the dispatch package supplies a
// length-prefixed-record policy instead.
type Policy interface {
	// OverwriteSize is asked, while assuring free space for an incoming
	// write, how many bytes starting at cursor's position should be
	// sacrificed. The default answers with exactly what's requested; a
	// record-aware policy rounds up to cover whole records.
	OverwriteSize(cursor *Cursor) uint32

	// ReadSize is asked, at the start of a Read, how many bytes the next
	// logical record occupies. The default answers with the caller's
	// destination length (consume as many raw bytes as fit); a
	// record-aware policy inspects a length prefix instead.
	ReadSize(cursor *Cursor) uint32
}

// DefaultPolicy treats the buffer as an undifferentiated byte stream.
type DefaultPolicy struct{}

// OverwriteSize returns cursor.Size() unchanged: evict exactly what's short.
func (DefaultPolicy) OverwriteSize(cursor *Cursor) uint32 { return cursor.Size() }

// ReadSize returns cursor.Size() unchanged: read exactly what the
// destination can hold.
func (DefaultPolicy) ReadSize(cursor *Cursor) uint32 { return cursor.Size() }
