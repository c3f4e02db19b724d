// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package doorbell

import (
	"path/filepath"
	"testing"
	"time"
)

func TestRingWakesWait(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bell.sock")

	consumer, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer consumer.Close()

	producer, err := Connect(path)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer producer.Close()

	done := make(chan error, 1)
	go func() {
		done <- consumer.Wait(2 * time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	if err := producer.Ring(); err != nil {
		t.Fatalf("Ring: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Wait never returned after Ring")
	}
}

func TestWaitTimesOutWithoutRing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bell.sock")

	consumer, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer consumer.Close()

	start := time.Now()
	err = consumer.Wait(30 * time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("Wait took far longer than its timeout")
	}
}

func TestMultipleRingsCoalesceIntoOneWait(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bell.sock")

	consumer, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer consumer.Close()

	producer, err := Connect(path)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer producer.Close()

	for i := 0; i < 5; i++ {
		if err := producer.Ring(); err != nil {
			t.Fatalf("Ring %d: %v", i, err)
		}
	}
	time.Sleep(20 * time.Millisecond) // let the datagrams land

	if err := consumer.Wait(time.Second); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	// A second Wait should now time out: the burst above collapsed into
	// a single wakeup, not five.
	start := time.Now()
	err = consumer.Wait(30 * time.Millisecond)
	if err == nil {
		t.Fatalf("expected second Wait to time out after the burst coalesced")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("second Wait took far longer than its timeout")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bell.sock")

	consumer, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := consumer.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := consumer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
