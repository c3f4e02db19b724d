// Package ring implements the lock-free single-producer/single-consumer
// cyclic byte buffer that every other conduit package builds on: a
// memory-mapped control block plus payload, safe for concurrent use by one
// writer and one reader living in different processes.
//
// Grounded on Source/core/CyclicBuffer.cpp/.h, with the administrative
// mutex/condvar pair reworked into a pure-Go cross-process spinlock (see
// controlBlock's doc comment) and the CAS-retry discipline translated from
// agilira-lethe/buffer.go's lock-free ring buffer and atomic-CAS rotation
// trigger.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package ring

import (
	"os"
	"sync/atomic"

	"github.com/agilira/conduit/errs"
	"github.com/agilira/conduit/region"
)

// Buffer is one process's attachment to a cyclic buffer's mapped region.
// Multiple Buffer values in different processes, opened against the same
// path, share the same underlying bytes.
type Buffer struct {
	region *region.Region
	ctrl   *controlBlock
	payload []byte
	policy Policy
	pid     uint32

	// alertEpoch is intentionally per-process, not part of the shared
	// control block: Alert() only ever aborts waiters living in the same
	// process that called it (see lock.go), matching CyclicBuffer::_alert
	// being a plain instance field in the original rather than shared
	// state. It increments on every Alert() call rather than toggling a
	// bool, so every waiter parked at Alert() time observes the change on
	// its own wake - not just whichever one happens to reacquire the admin
	// lock first and clear a shared flag. Always read/written with the
	// admin lock held, like heldByMe below.
	alertEpoch uint32

	// heldByMe tracks whether this specific Buffer instance (not merely
	// this OS process) currently owns the administrative lock.
	heldByMe bool

	// onDataAvailable, if set, is invoked after a write makes the buffer
	// non-empty, with the admin lock held - mirrors the virtual
	// DataAvailable() hook MessageDataBuffer overrides to ring its doorbell.
	onDataAvailable func()
}

// New creates (or attaches to) a cyclic buffer backed by path. overwrite
// controls the STATE_OVERWRITE bit: when true, a write larger than the
// available free space evicts old records instead of failing. policy may be
// nil, in which case DefaultPolicy is used.
func New(path string, size uint32, overwrite bool, policy Policy) (*Buffer, error) {
	if policy == nil {
		policy = DefaultPolicy{}
	}
	reg, initiator, err := region.Create(path, size+controlBlockSize, region.DefaultMode)
	if err != nil {
		return nil, errs.Wrap(errs.KindIllegalState, "ring: create region", err)
	}

	b := &Buffer{
		region:  reg,
		ctrl:    controlBlockAt(reg.Bytes()),
		payload: reg.Bytes()[controlBlockSize:],
		policy:  policy,
		pid:     currentPID(),
	}

	if initiator {
		b.initControlBlock(overwrite)
	}
	return b, nil
}

// Open attaches to an already-initialized cyclic buffer. It never creates
// or resets the control block.
func Open(path string, policy Policy) (*Buffer, error) {
	if policy == nil {
		policy = DefaultPolicy{}
	}
	reg, err := region.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindIllegalState, "ring: open region", err)
	}
	if reg.Size() <= controlBlockSize {
		_ = reg.Close()
		return nil, errs.New(errs.KindIllegalState, "ring: region too small to hold a control block")
	}
	return &Buffer{
		region:  reg,
		ctrl:    controlBlockAt(reg.Bytes()),
		payload: reg.Bytes()[controlBlockSize:],
		policy:  policy,
		pid:     currentPID(),
	}, nil
}

func (b *Buffer) initControlBlock(overwrite bool) {
	ctrl := b.ctrl
	size := uint32(len(b.payload))
	mask, modulus := computeMasks(size)
	ctrl.indexMask = mask
	ctrl.roundModulus = modulus
	ctrl.size = size
	ctrl.head = 0
	ctrl.tail = 0
	ctrl.waiters = 0
	ctrl.lockingPID = 0
	ctrl.reserved = 0
	ctrl.reservedWritten = 0
	ctrl.reservingPID = 0
	ctrl.adminSpin = 0
	ctrl.generation = 0
	if overwrite {
		ctrl.state = stateOverwrite
	} else {
		ctrl.state = 0
	}
}

func currentPID() uint32 { return uint32(os.Getpid()) }

// SetDataAvailable installs the hook invoked after a write transitions the
// buffer from empty to non-empty. The dispatch package wires this to ring
// its doorbell.
func (b *Buffer) SetDataAvailable(fn func()) { b.onDataAvailable = fn }

// Name returns the backing region's path.
func (b *Buffer) Name() string { return b.region.Name() }

// IsOverwrite reports whether this buffer evicts old records on overflow.
func (b *Buffer) IsOverwrite() bool {
	return atomic.LoadUint32(&b.ctrl.state)&stateOverwrite != 0
}

// Size returns the payload capacity in bytes (excluding the control block).
func (b *Buffer) Size() uint32 { return b.ctrl.size }

// Used returns the number of unread bytes currently stored.
func (b *Buffer) Used() uint32 {
	head := atomic.LoadUint32(&b.ctrl.head)
	tailIdx := atomic.LoadUint32(&b.ctrl.tail) & b.ctrl.indexMask
	return used(b.ctrl.size, head, tailIdx)
}

// Free returns the number of bytes not holding unread data. One of them
// always stays empty so a full buffer is distinguishable from an empty one,
// so a non-evicting write must be strictly smaller than Free().
func (b *Buffer) Free() uint32 {
	head := atomic.LoadUint32(&b.ctrl.head)
	tailIdx := atomic.LoadUint32(&b.ctrl.tail) & b.ctrl.indexMask
	return free(b.ctrl.size, head, tailIdx)
}

// Overwritten reports whether a write has evicted unread data since the
// last call, clearing the flag as it reports it - mirrors
// CyclicBuffer::Overwritten()'s read-and-clear semantics.
func (b *Buffer) Overwritten() bool {
	for {
		old := atomic.LoadUint32(&b.ctrl.state)
		if old&stateOverwritten == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(&b.ctrl.state, old, old&^stateOverwritten) {
			return true
		}
	}
}

// Flush discards every unread byte, moving the read cursor up to the
// current write cursor. Mirrors CyclicBuffer::Flush().
func (b *Buffer) Flush() {
	head := atomic.LoadUint32(&b.ctrl.head)
	atomic.StoreUint32(&b.ctrl.tail, head)
}

// Close detaches this process's mapping. It does not remove the backing
// file - the initiator decides that independently once every attacher has
// detached.
func (b *Buffer) Close() error {
	if b.region == nil {
		return nil
	}
	return b.region.Close()
}

// Write appends data, evicting old records first when overwrite is enabled
// and there isn't enough free space. Returns KindWriteError if overwrite is
// disabled and data does not fit. Mirrors CyclicBuffer::Write's two paths:
// writing against an open Reserve() (writeStart advances by
// reservedWritten, head only moves once the reservation completes) and the
// direct AssureFreeSpace path used by ordinary unreserved writes.
func (b *Buffer) Write(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	ctrl := b.ctrl
	if uint32(len(data)) >= ctrl.size {
		return 0, errs.New(errs.KindWriteError, "ring: write larger than buffer capacity")
	}

	startingEmpty := b.Used() == 0
	head := atomic.LoadUint32(&ctrl.head)
	writeStart := head
	shouldMoveHead := true

	if reservingPID := atomic.LoadUint32(&ctrl.reservingPID); reservingPID != 0 {
		if reservingPID != b.pid {
			return 0, errs.New(errs.KindIllegalState, "ring: write: reservation held by another process")
		}
		newWritten := ctrl.reservedWritten + uint32(len(data))
		if newWritten > ctrl.reserved {
			return 0, errs.New(errs.KindIllegalState, "ring: write: exceeds open reservation")
		}
		writeStart = (head + ctrl.reservedWritten) % ctrl.size
		ctrl.reservedWritten = newWritten
		if newWritten == ctrl.reserved {
			atomic.StoreUint32(&ctrl.reservingPID, 0)
		} else {
			shouldMoveHead = false
		}
	} else {
		if !b.IsOverwrite() && uint32(len(data)) >= b.Free() {
			return 0, errs.New(errs.KindWriteError, "ring: write: insufficient space and overwrite disabled")
		}
		b.assureFreeSpace(uint32(len(data)))
		writeStart = atomic.LoadUint32(&ctrl.head)
	}

	writeEnd := (writeStart + uint32(len(data))) % ctrl.size
	if writeStart+uint32(len(data)) <= ctrl.size {
		copy(b.payload[writeStart:writeStart+uint32(len(data))], data)
	} else {
		first := ctrl.size - writeStart
		copy(b.payload[writeStart:], data[:first])
		copy(b.payload[:writeEnd], data[first:])
	}

	if shouldMoveHead {
		atomic.StoreUint32(&ctrl.head, writeEnd)
		if startingEmpty {
			b.adminLock()
			b.reevaluate()
			if b.onDataAvailable != nil {
				b.onDataAvailable()
			}
			b.adminUnlock()
			b.drainWaiters()
		}
	}
	return len(data), nil
}

// Reserve stakes out n bytes (clamped to size-1) for a sequence of Write
// calls from this process, evicting old data first if needed. Only one
// process may hold an open reservation at a time. Mirrors
// CyclicBuffer::Reserve.
func (b *Buffer) Reserve(n uint32) (uint32, error) {
	ctrl := b.ctrl
	if !b.IsOverwrite() && n >= b.Free() {
		return 0, errs.New(errs.KindWriteError, "ring: reserve: insufficient space and overwrite disabled")
	}
	if !atomic.CompareAndSwapUint32(&ctrl.reservingPID, 0, b.pid) {
		return 0, errs.New(errs.KindIllegalState, "ring: reserve: another process already holds a reservation")
	}
	actual := n
	if actual >= ctrl.size {
		actual = ctrl.size - 1
	}
	b.assureFreeSpace(actual)
	ctrl.reserved = actual
	ctrl.reservedWritten = 0
	return actual, nil
}

// assureFreeSpace evicts records from the tail, via the policy's
// OverwriteSize hook, until at least required bytes are free. CAS-retries
// against concurrent readers advancing the tail on their own. Mirrors
// CyclicBuffer::AssureFreeSpace.
func (b *Buffer) assureFreeSpace(required uint32) {
	ctrl := b.ctrl
	for {
		oldTail := atomic.LoadUint32(&ctrl.tail)
		tailIdx := oldTail & ctrl.indexMask
		head := atomic.LoadUint32(&ctrl.head)
		freeBytes := free(ctrl.size, head, tailIdx)
		if freeBytes > required {
			return
		}
		shortfall := required - freeBytes + 1
		cur := newCursor(b, oldTail, shortfall)
		advance := b.policy.OverwriteSize(cur)
		if advance == 0 {
			advance = shortfall
		}
		newTail := cur.CompleteTail(advance)
		if atomic.CompareAndSwapUint32(&ctrl.tail, oldTail, newTail) {
			b.setOverwritten()
			return
		}
	}
}

func (b *Buffer) setOverwritten() {
	for {
		old := atomic.LoadUint32(&b.ctrl.state)
		if old&stateOverwritten != 0 {
			return
		}
		if atomic.CompareAndSwapUint32(&b.ctrl.state, old, old|stateOverwritten) {
			return
		}
	}
}

// Peek copies as many unread bytes as fit into dst without advancing the
// read cursor. Mirrors CyclicBuffer::Peek's CAS-race detection: if the tail
// moved while the copy was in flight, it retries rather than return stale
// bytes.
func (b *Buffer) Peek(dst []byte) (int, error) {
	ctrl := b.ctrl
	for {
		oldTail := atomic.LoadUint32(&ctrl.tail)
		tailIdx := oldTail & ctrl.indexMask
		head := atomic.LoadUint32(&ctrl.head)
		avail := used(ctrl.size, head, tailIdx)
		if avail == 0 {
			return 0, nil
		}
		result := avail
		if result > uint32(len(dst)) {
			result = uint32(len(dst))
		}
		readEnd := tailIdx + result
		if readEnd <= ctrl.size {
			copy(dst[:result], b.payload[tailIdx:tailIdx+result])
		} else {
			first := ctrl.size - tailIdx
			copy(dst[:first], b.payload[tailIdx:])
			copy(dst[first:result], b.payload[:result-first])
		}
		if atomic.LoadUint32(&ctrl.tail) == oldTail {
			return int(result), nil
		}
	}
}

// Read consumes the next logical record as sized by the policy's ReadSize
// hook. When partial is false and the record is larger than dst, nothing is
// consumed and (0, nil) is returned - the caller must retry with a bigger
// buffer. When partial is true, the record is consumed regardless: dst
// receives as many bytes as fit, and the returned int is always the
// record's full required length (not the number of bytes actually copied),
// with errs.KindTruncated if dst was too small to hold it all - mirroring
// CyclicBuffer::Read, which always returns the record's full size, and
// spec section 7's truncation contract ("report the length needed ... so
// the caller may resize and retry"). Since copyLen bytes is always equal to
// len(dst) on truncation, the required length is exactly what a caller
// needs to size its next buffer; the already-copied prefix in dst[:len(dst)]
// is all that's recoverable - the rest of the record is gone.
func (b *Buffer) Read(dst []byte, partial bool) (int, error) {
	ctrl := b.ctrl
	for {
		oldTail := atomic.LoadUint32(&ctrl.tail)
		tailIdx := oldTail & ctrl.indexMask
		head := atomic.LoadUint32(&ctrl.head)
		if used(ctrl.size, head, tailIdx) == 0 {
			return 0, nil
		}

		cur := newCursor(b, oldTail, uint32(len(dst)))
		result := b.policy.ReadSize(cur)
		if result == 0 {
			return 0, nil
		}
		if result > uint32(len(dst)) && !partial {
			return 0, nil
		}

		copyLen := result
		truncated := false
		if uint32(len(dst)) < copyLen {
			copyLen = uint32(len(dst))
			truncated = true
		}

		offset := (tailIdx + cur.Offset()) % ctrl.size
		round := oldTail / (ctrl.indexMask + 1)

		var newTail uint32
		if offset+result < ctrl.size {
			copy(dst[:copyLen], b.payload[offset:offset+copyLen])
			newTail = (offset + result) | round*(ctrl.indexMask+1)
		} else {
			// offset+result >= size: wraps, or lands exactly on the
			// boundary (part2 == 0, a single contiguous copy in effect).
			var part1, part2 uint32
			if ctrl.size < offset {
				part2 = result - (offset - ctrl.size)
			} else {
				part1 = ctrl.size - offset
				part2 = result - part1
			}
			firstCopy := part1
			if firstCopy > copyLen {
				firstCopy = copyLen
			}
			copy(dst[:firstCopy], b.payload[offset:offset+firstCopy])
			if part1 < copyLen {
				copy(dst[part1:copyLen], b.payload[:copyLen-part1])
			}
			round = (round + 1) % ctrl.roundModulus
			newTail = part2 | round*(ctrl.indexMask+1)
		}

		if !atomic.CompareAndSwapUint32(&ctrl.tail, oldTail, newTail) {
			continue
		}
		if truncated {
			return int(result), errs.New(errs.KindTruncated, "ring: read: destination smaller than record")
		}
		return int(result), nil
	}
}
