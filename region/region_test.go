// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package region

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateInitiatorThenOpenAttaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "region.bin")

	r1, initiator, err := Create(path, 4096, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer r1.Close()
	if !initiator {
		t.Fatalf("expected first Create to be the initiator")
	}

	r1.Bytes()[0] = 0xAB

	r2, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r2.Close()

	if r2.Bytes()[0] != 0xAB {
		t.Fatalf("attacher did not observe initiator's write")
	}

	r2.Bytes()[1] = 0xCD
	if r1.Bytes()[1] != 0xCD {
		t.Fatalf("initiator did not observe attacher's write")
	}
}

func TestCreateSecondCallAttachesWithoutReinitiating(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "region.bin")

	r1, initiator1, err := Create(path, 4096, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer r1.Close()
	if !initiator1 {
		t.Fatalf("first Create should be initiator")
	}

	r2, initiator2, err := Create(path, 4096, 0)
	if err != nil {
		t.Fatalf("Create (second): %v", err)
	}
	defer r2.Close()
	if initiator2 {
		t.Fatalf("second Create against an existing region must not re-initiate")
	}
}

func TestCreateRejectsZeroSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "region.bin")
	if _, _, err := Create(path, 0, 0); err == nil {
		t.Fatalf("expected error for zero size")
	}
}

func TestSizeIsPageRounded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "region.bin")

	r, _, err := Create(path, 10, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer r.Close()

	if r.Size() < 10 {
		t.Fatalf("region size %d smaller than requested 10", r.Size())
	}
	if int(r.Size())%os.Getpagesize() != 0 {
		t.Fatalf("region size %d not page aligned", r.Size())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "region.bin")

	r, _, err := Create(path, 4096, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
