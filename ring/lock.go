// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package ring

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/agilira/conduit/errs"
)

// Infinite passed as the timeout to Lock means wait without a deadline.
const Infinite time.Duration = -1

const (
	adminSpinLimit     = 1000 // busy-spin attempts before backing off to Sleep
	adminBackoff       = 20 * time.Microsecond
	waiterPollInterval = time.Millisecond
	reevaluateSpins    = 10000 // bounded per SPEC_FULL.md section 7's open-question decision
)

// adminLock acquires the cross-process administrative spinlock that
// guards state/lockingPID/waiters/generation. Short critical sections only
// - every holder does O(1) field updates before releasing.
func (b *Buffer) adminLock() {
	for i := 0; !atomic.CompareAndSwapUint32(&b.ctrl.adminSpin, 0, 1); i++ {
		if i < adminSpinLimit {
			runtime.Gosched()
		} else {
			time.Sleep(adminBackoff)
		}
	}
}

func (b *Buffer) adminUnlock() {
	atomic.StoreUint32(&b.ctrl.adminSpin, 0)
}

// reevaluate bumps the generation counter, waking any parked waiter's next
// poll. Must be called with the admin lock held - it only signals, it never
// blocks, so it cannot deadlock against a waiter trying to re-acquire the
// same lock. Mirrors the pthread_cond_signal half of
// CyclicBuffer::Reevaluate.
func (b *Buffer) reevaluate() {
	if atomic.LoadUint32(&b.ctrl.waiters) == 0 {
		return
	}
	atomic.AddUint32(&b.ctrl.generation, 1)
}

// drainWaiters spins, without holding the admin lock, until every waiter
// signaled by a prior reevaluate() has had a chance to wake and re-acquire
// the lock on its own. Mirrors the second half of
// CyclicBuffer::Reevaluate - the "wait for _agents to drain" spin - which in
// the original only works because pthread_cond_wait releases the mutex
// while parked; bounded per SPEC_FULL.md section 7's open-question
// decision so a waiter scheduled away by the OS can never wedge the caller.
func (b *Buffer) drainWaiters() {
	for i := 0; i < reevaluateSpins; i++ {
		if atomic.LoadUint32(&b.ctrl.waiters) == 0 {
			return
		}
		runtime.Gosched()
	}
}

// waitForGeneration blocks until ctrl.generation no longer equals gen, or
// deadline passes (when !infinite). Substitutes for parking on the
// pthread_cond_t the original signals under the same administrative mutex;
// here a parked Lock() caller releases the admin spinlock first (so the
// signaler can make progress) and polls instead of truly sleeping on a
// kernel object.
func waitForGeneration(ctrl *controlBlock, gen uint32, deadline time.Time, infinite bool) {
	for atomic.LoadUint32(&ctrl.generation) == gen {
		if !infinite && !time.Now().Before(deadline) {
			return
		}
		time.Sleep(waiterPollInterval)
	}
}

// Lock acquires the buffer's coarse administrative lock, as used by a
// consumer draining the buffer under mutual exclusion from other would-be
// lockers. When dataPresent is true, Lock only succeeds once Used() > 0,
// letting a waiter block until there's something to read. timeout bounds
// how long to wait (pass Infinite to wait forever); the remaining budget is
// returned alongside a nil error on success.
//
// Mirrors CyclicBuffer::Lock, with PID-based reentrancy rejected rather
// than silently upgraded, matching the original's non-recursive mutex.
func (b *Buffer) Lock(dataPresent bool, timeout time.Duration) (time.Duration, error) {
	if atomic.LoadUint32(&b.ctrl.lockingPID) == b.pid && b.heldByMe {
		return timeout, errs.New(errs.KindIllegalState, "ring: lock: already held by this process")
	}

	infinite := timeout == Infinite
	var deadline time.Time
	if !infinite {
		deadline = time.Now().Add(timeout)
	}

	b.adminLock()
	for {
		state := atomic.LoadUint32(&b.ctrl.state)
		ready := state&stateLocked == 0 && (!dataPresent || b.usedLocked() > 0)
		if ready {
			atomic.StoreUint32(&b.ctrl.state, state|stateLocked)
			atomic.StoreUint32(&b.ctrl.lockingPID, b.pid)
			b.heldByMe = true
			b.adminUnlock()
			if infinite {
				return Infinite, nil
			}
			return remainingOrZero(deadline), nil
		}

		if !infinite && !time.Now().Before(deadline) {
			b.adminUnlock()
			return 0, errs.New(errs.KindTimeout, "ring: lock: timed out")
		}

		atomic.AddUint32(&b.ctrl.waiters, 1)
		gen := atomic.LoadUint32(&b.ctrl.generation)
		myAlertEpoch := b.alertEpoch
		b.adminUnlock()

		waitForGeneration(b.ctrl, gen, deadline, infinite)

		b.adminLock()
		atomic.AddUint32(&b.ctrl.waiters, ^uint32(0)) // decrement

		if b.alertEpoch != myAlertEpoch {
			b.adminUnlock()
			if infinite {
				return Infinite, errs.New(errs.KindAlerted, "ring: lock: alerted")
			}
			return remainingOrZero(deadline), errs.New(errs.KindAlerted, "ring: lock: alerted")
		}
	}
}

func remainingOrZero(deadline time.Time) time.Duration {
	if d := time.Until(deadline); d > 0 {
		return d
	}
	return 0
}

// usedLocked reads Used() without re-acquiring the admin lock; callers must
// already hold it.
func (b *Buffer) usedLocked() uint32 {
	head := atomic.LoadUint32(&b.ctrl.head)
	tailIdx := atomic.LoadUint32(&b.ctrl.tail) & b.ctrl.indexMask
	return used(b.ctrl.size, head, tailIdx)
}

// Unlock releases a lock held by this process. Returns KindIllegalState if
// this process does not hold it.
func (b *Buffer) Unlock() error {
	b.adminLock()
	if atomic.LoadUint32(&b.ctrl.lockingPID) != b.pid || !b.heldByMe {
		b.adminUnlock()
		return errs.New(errs.KindIllegalState, "ring: unlock: not held by this process")
	}
	state := atomic.LoadUint32(&b.ctrl.state)
	atomic.StoreUint32(&b.ctrl.state, state&^stateLocked)
	atomic.StoreUint32(&b.ctrl.lockingPID, 0)
	b.heldByMe = false
	b.reevaluate()
	b.adminUnlock()
	b.drainWaiters()
	return nil
}

// Alert aborts every Lock() call parked in this process with
// errs.KindAlerted, without releasing the lock itself. Mirrors
// CyclicBuffer::Alert(): alertEpoch lives per-process (see Buffer's doc
// comment), so only this process's own waiters are aborted - waiters in
// other attached processes simply wake, find their own snapshot still
// matching, and resume waiting. Incrementing rather than toggling a bool
// means every waiter parked when Alert() is called observes the change on
// its own wake, not just the first one to reacquire the admin lock - a
// single Alert() call while N goroutines are parked in this process's
// Lock() aborts all N, matching "alert() unblocks all waiters".
func (b *Buffer) Alert() {
	b.adminLock()
	b.alertEpoch++
	b.reevaluate()
	b.adminUnlock()
	b.drainWaiters()
}

// IsLocked reports whether any process currently holds the administrative
// lock.
func (b *Buffer) IsLocked() bool {
	return atomic.LoadUint32(&b.ctrl.state)&stateLocked != 0
}

// LockingPID returns the PID of the process currently holding the
// administrative lock, or 0 if unlocked.
func (b *Buffer) LockingPID() uint32 {
	return atomic.LoadUint32(&b.ctrl.lockingPID)
}
