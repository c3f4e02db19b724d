// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package ring

import "unsafe"

// state bits, matching spec section 4.1's coarse state machine.
const (
	stateLocked     uint32 = 0x01
	stateOverwrite  uint32 = 0x02
	stateOverwritten uint32 = 0x04
)

// controlBlock sits at byte 0 of the mapped region. Every field here is
// read and written by every attached process, so only the operations in
// this package may touch it - the field names are unexported even though
// the memory itself is process-shared.
//
// Layout mirrors Source/core/CyclicBuffer.h's `struct control`, with two
// adaptations documented in DESIGN.md: the pthread_mutex_t/pthread_cond_t
// pair becomes adminSpin+generation (a pure-Go cross-process spinlock plus
// a change counter waiters poll on), and state is widened from uint16 to
// uint32 for simpler atomic access - the extra bits are never set.
type controlBlock struct {
	// adminSpin is the cross-process administrative lock substitute: 0
	// free, 1 held. Replaces the pthread_mutex_t since Go cannot construct
	// a PTHREAD_PROCESS_SHARED mutex without cgo.
	adminSpin uint32
	// generation is bumped by reevaluate() every time the admin lock
	// releases a state change that waiters should re-check. Replaces the
	// pthread_cond_t broadcast; waiters poll for a change instead of
	// blocking on a kernel object.
	generation uint32

	head uint32 // write cursor; index only, no round bits (matches original)
	tail uint32 // read cursor; index | round bits

	indexMask    uint32
	roundModulus uint32

	waiters uint32
	state   uint32

	size uint32

	lockingPID uint32

	reserved        uint32
	reservedWritten uint32
	reservingPID    uint32
}

const controlBlockSize = uint32(unsafe.Sizeof(controlBlock{}))

func controlBlockAt(data []byte) *controlBlock {
	return (*controlBlock)(unsafe.Pointer(&data[0]))
}

// computeMasks derives index_mask and round_modulus for a payload of the
// given size, per spec section 4.1: smallest index_mask of form 2^k-1 with
// index_mask >= size, round_modulus = 2^(32-k).
func computeMasks(size uint32) (mask, modulus uint32) {
	mask = 1
	modulus = 1 << 31
	for mask < size {
		mask = (mask << 1) + 1
		modulus >>= 1
	}
	return mask, modulus
}

func used(size, head, tailIdx uint32) uint32 {
	if head >= tailIdx {
		return head - tailIdx
	}
	return size - (tailIdx - head)
}

func free(size, head, tailIdx uint32) uint32 {
	if head >= tailIdx {
		return size - (head - tailIdx)
	}
	return tailIdx - head
}
