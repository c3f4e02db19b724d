// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package dispatch

import (
	"path/filepath"
	"testing"
	"time"
)

func newPair(t *testing.T) (consumer, producer *Buffer) {
	t.Helper()
	dir := t.TempDir()
	ringPath := filepath.Join(dir, "ring.bin")
	bellPath := filepath.Join(dir, "bell.sock")

	c, err := New(ringPath, 4096, false, bellPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Relinquish() })

	p, err := Attach(ringPath, bellPath)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	t.Cleanup(func() { _ = p.Relinquish() })

	return c, p
}

func TestPushPopRoundTrip(t *testing.T) {
	consumer, producer := newPair(t)

	if err := producer.Push([]byte("hello")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	dst := make([]byte, 32)
	n, err := consumer.Pop(dst)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if string(dst[:n]) != "hello" {
		t.Fatalf("Pop got %q", dst[:n])
	}
}

func TestPopOnEmptyReturnsZero(t *testing.T) {
	consumer, _ := newPair(t)
	n, err := consumer.Pop(make([]byte, 16))
	if n != 0 || err != nil {
		t.Fatalf("Pop on empty: n=%d err=%v", n, err)
	}
}

func TestPopTruncatesWhenDestinationTooSmall(t *testing.T) {
	consumer, producer := newPair(t)

	if err := producer.Push([]byte("0123456789")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	dst := make([]byte, 4)
	n, err := consumer.Pop(dst)
	if n != 10 {
		t.Fatalf("Pop truncated n = %d, want 10 (the record's full required length)", n)
	}
	if err == nil {
		t.Fatalf("expected truncation error")
	}
	if string(dst) != "0123" {
		t.Fatalf("expected the first 4 bytes copied into dst, got %q", dst)
	}

	// the record was still consumed whole - nothing left behind.
	n2, err2 := consumer.Pop(make([]byte, 16))
	if n2 != 0 || err2 != nil {
		t.Fatalf("expected empty buffer after truncated read: n=%d err=%v", n2, err2)
	}
}

func TestPushWakesWaitingConsumer(t *testing.T) {
	consumer, producer := newPair(t)

	done := make(chan error, 1)
	go func() {
		done <- consumer.Wait(2 * time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	if err := producer.Push([]byte("wake up")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Wait never returned after Push")
	}

	dst := make([]byte, 32)
	n, err := consumer.Pop(dst)
	if err != nil || string(dst[:n]) != "wake up" {
		t.Fatalf("Pop after wake: n=%d err=%v data=%q", n, err, dst[:n])
	}
}

func TestMultipleRecordsPreserveOrder(t *testing.T) {
	consumer, producer := newPair(t)

	records := []string{"first", "second", "third"}
	for _, r := range records {
		if err := producer.Push([]byte(r)); err != nil {
			t.Fatalf("Push(%q): %v", r, err)
		}
	}

	for _, want := range records {
		dst := make([]byte, 32)
		n, err := consumer.Pop(dst)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if string(dst[:n]) != want {
			t.Fatalf("Pop got %q, want %q", dst[:n], want)
		}
	}
}
