// Package console implements ConsoleRedirect: optional capture of the
// process's standard output and/or standard error so that each line written
// to them becomes a record pushed through a messaging.Unit under a
// well-known OperationalStream category.
//
// Grounded on Source/messaging/ConsoleStreamRedirect.h: two independent
// redirect objects (one per stream), unbuffered line-by-line capture, and a
// teardown that restores the original descriptor.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package console

import (
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/agilira/conduit/control"
	"github.com/agilira/conduit/errs"
	"github.com/agilira/conduit/messaging"
)

// Well-known category names under control.OperationalStream, matching the
// original's "OperationalStream::StandardOut/Err" vocabulary.
const (
	CategoryStandardOut = "StandardOut"
	CategoryStandardErr = "StandardErr"
)

// Redirect captures one standard stream, pushing every line written to it
// through a messaging.Unit under an OperationalStream category. Construct
// one per stream via NewStdout/NewStderr; Close restores the original
// descriptor and stops the capture goroutine.
type Redirect struct {
	unit *messaging.Unit
	cat  *control.Category

	original *os.File // the *os.Stdout / *os.Stderr pointer being replaced
	restore  func(*os.File)

	writer *os.File // the pipe end installed in place of original
	reader *os.File

	closeOnce sync.Once
	done      chan struct{}
}

// NewStdout redirects os.Stdout through unit under CategoryStandardOut.
func NewStdout(unit *messaging.Unit) (*Redirect, error) {
	return newRedirect(unit, CategoryStandardOut, os.Stdout, func(f *os.File) { os.Stdout = f })
}

// NewStderr redirects os.Stderr through unit under CategoryStandardErr.
func NewStderr(unit *messaging.Unit) (*Redirect, error) {
	return newRedirect(unit, CategoryStandardErr, os.Stderr, func(f *os.File) { os.Stderr = f })
}

func newRedirect(unit *messaging.Unit, category string, original *os.File, restore func(*os.File)) (*Redirect, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, errs.Wrap(errs.KindIllegalState, "console: create redirect pipe", err)
	}

	cr := &Redirect{
		unit:     unit,
		cat:      unit.Announce(control.OperationalStream, "console", category, true),
		original: original,
		restore:  restore,
		writer:   w,
		reader:   r,
		done:     make(chan struct{}),
	}

	restore(w)
	go cr.pump()
	return cr, nil
}

// pump reads lines from the pipe's read end until it is closed, pushing
// each one as a record. Unbuffered line-by-line capture: the scanner yields
// a line as soon as its trailing newline arrives, matching the original's
// "buffering mode set to unbuffered" requirement at the capture end.
func (r *Redirect) pump() {
	defer close(r.done)
	scanner := bufio.NewScanner(r.reader)
	scanner.Buffer(make([]byte, 4096), 64*1024)
	for scanner.Scan() {
		_ = r.unit.Push(r.cat, scanner.Text())
	}
}

// Close restores the original stream descriptor and waits for the capture
// goroutine to drain and exit. Idempotent.
func (r *Redirect) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.restore(r.original)
		if cerr := r.writer.Close(); cerr != nil && cerr != io.ErrClosedPipe {
			err = cerr
		}
		<-r.done
		_ = r.reader.Close()
	})
	return err
}
