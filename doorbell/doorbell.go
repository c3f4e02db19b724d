// Package doorbell implements a named, cross-process, edge-triggered wake
// signal: a producer Rings it when it has put something in a shared
// buffer, a consumer Waits on it (with a timeout) to find out. Multiple
// Ring calls that land before the next Wait coalesce into a single wakeup
// - a slow consumer never has to drain a backlog of stale notifications,
// it only ever learns "something changed since you last checked."
//
// Grounded on MessageDispatcher.h's DataBuffer/DoorBell pairing (Ring on
// write, Wait/Acknowledge/Relinquish on the consumer side) and
// PrepareFilenames' branch between a filesystem socket path and a loopback
// TCP/UDP port for environments where a shared filesystem socket isn't
// reachable across namespaces. There is no portable pthread_cond_t
// equivalent without cgo (see ring/lock.go), so unlike the original this
// doorbell is a real kernel object - a UNIX datagram or UDP socket -
// rather than shared-memory state, which is what actually lets Wait block
// without spinning.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package doorbell

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/agilira/conduit/errs"
)

// wakeToken is the datagram payload carried by a Ring; its content is
// irrelevant, only its arrival matters.
var wakeToken = []byte{0x01}

// Doorbell is one process's handle onto a named wake signal. The consumer
// calls Open to bind it; any number of producers call Connect to attach to
// the same name and Ring it.
type Doorbell struct {
	mu         sync.Mutex
	path       string
	isFileSock bool // true for unixgram (path is a filesystem path to clean up), false for UDP
	conn       net.PacketConn // consumer side: bound, used by Wait
	sender     net.Conn       // producer side: connected, used by Ring
	closeOnce  sync.Once
}

// Open binds a doorbell at path for receiving, removing a stale socket
// file left behind by a crashed previous owner first. This is the consumer
// side - the one that calls Wait.
func Open(path string) (*Doorbell, error) {
	_ = os.Remove(path) // best-effort: drop a stale socket from a prior crash
	conn, err := net.ListenPacket("unixgram", path)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnavailable, fmt.Sprintf("doorbell: bind %q", path), err)
	}
	return &Doorbell{path: path, isFileSock: true, conn: conn}, nil
}

// OpenTCP binds a doorbell over loopback UDP at port instead of a
// filesystem socket, mirroring PrepareFilenames' fallback for deployments
// where a shared filesystem socket path isn't usable.
func OpenTCP(port int) (*Doorbell, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnavailable, fmt.Sprintf("doorbell: bind %q", addr), err)
	}
	return &Doorbell{path: addr, conn: conn}, nil
}

// Connect attaches to an existing doorbell at path for sending - the
// producer side, which calls Ring. path must match what Open was called
// with in the consumer process.
func Connect(path string) (*Doorbell, error) {
	conn, err := net.Dial("unixgram", path)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnavailable, fmt.Sprintf("doorbell: connect %q", path), err)
	}
	return &Doorbell{path: path, sender: conn}, nil
}

// ConnectTCP attaches to a doorbell bound with OpenTCP.
func ConnectTCP(port int) (*Doorbell, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnavailable, fmt.Sprintf("doorbell: connect %q", addr), err)
	}
	return &Doorbell{path: addr, sender: conn}, nil
}

// Ring wakes a waiting consumer. Safe to call even if nobody is currently
// waiting - the consumer's next Wait call simply returns immediately
// instead of blocking.
func (d *Doorbell) Ring() error {
	if d.sender == nil {
		return errs.New(errs.KindIllegalState, "doorbell: Ring called on a consumer-side handle")
	}
	if _, err := d.sender.Write(wakeToken); err != nil {
		return errs.Wrap(errs.KindUnavailable, "doorbell: ring", err)
	}
	return nil
}

// Wait blocks until Ring is called by some producer, or timeout elapses.
// Any number of Rings that arrived since the previous Wait coalesce: this
// call drains every pending wake datagram before returning, so a burst of
// Rings never causes a burst of Wait returns.
func (d *Doorbell) Wait(timeout time.Duration) error {
	if d.conn == nil {
		return errs.New(errs.KindIllegalState, "doorbell: Wait called on a producer-side handle")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return errs.Wrap(errs.KindUnavailable, "doorbell: set deadline", err)
	}

	buf := make([]byte, 16)
	if _, _, err := d.conn.ReadFrom(buf); err != nil {
		if isTimeout(err) {
			return errs.New(errs.KindTimeout, "doorbell: wait: timed out")
		}
		return errs.Wrap(errs.KindUnavailable, "doorbell: wait", err)
	}

	d.drainPending()
	return nil
}

// drainPending non-blockingly consumes any further wake datagrams already
// queued on the socket, so a burst of Rings collapses to one Wait return.
func (d *Doorbell) drainPending() {
	buf := make([]byte, 16)
	for {
		if err := d.conn.SetReadDeadline(time.Now()); err != nil {
			return
		}
		if _, _, err := d.conn.ReadFrom(buf); err != nil {
			return
		}
	}
}

// Acknowledge marks the most recent Wait as processed. Present for parity
// with the reference API and for callers that want an explicit processing
// boundary in their own code; Wait already drains the socket fully, so
// there is nothing left for Acknowledge to do on the wire.
func (d *Doorbell) Acknowledge() error {
	if d.conn == nil && d.sender == nil {
		return errs.New(errs.KindIllegalState, "doorbell: not open")
	}
	return nil
}

// Relinquish releases this handle's resources. Equivalent to Close; kept
// as a distinct name for call sites that read more naturally that way
// (matching the reference Ring/Wait/Acknowledge/Relinquish vocabulary).
func (d *Doorbell) Relinquish() error {
	return d.Close()
}

// Close releases the underlying socket. Safe to call more than once. The
// consumer's Close also removes the backing socket file so a later Open at
// the same path doesn't need to clean up after it.
func (d *Doorbell) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.conn != nil {
			err = d.conn.Close()
			if d.isFileSock && d.path != "" {
				_ = os.Remove(d.path)
			}
		}
		if d.sender != nil {
			if cerr := d.sender.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
