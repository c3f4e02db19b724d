// Command conduit-consumer initializes a conduit transport and prints every
// record pushed into it to stdout, one line per record, until interrupted.
//
// Grounded on agilira-lethe/examples/basic_integration.go's
// narrative-example style; flash-flags replaces the example's flagless
// style with real CLI parsing.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flashflags "github.com/agilira/flash-flags"

	"github.com/agilira/conduit"
)

func main() {
	fs := flashflags.New("conduit-consumer")
	basePath := fs.String("base-path", "/tmp/conduit", "base directory for the transport's backing files")
	identifier := fs.String("id", "demo", "transport identifier shared with producers")
	pollTimeout := fs.Int("poll-ms", 500, "milliseconds to wait for new records between polls")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "conduit-consumer:", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(basePath.Value(), 0755); err != nil {
		fmt.Fprintln(os.Stderr, "conduit-consumer: base path:", err)
		os.Exit(1)
	}

	t, err := conduit.Initialize(conduit.Settings{
		BasePath:   basePath.Value(),
		Identifier: identifier.Value(),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "conduit-consumer: initialize:", err)
		os.Exit(1)
	}
	defer t.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	timeout := time.Duration(pollTimeout.Value()) * time.Millisecond
	for {
		select {
		case <-sigCh:
			return
		default:
		}

		rec, ok, err := t.Pop()
		if err != nil {
			fmt.Fprintln(os.Stderr, "conduit-consumer: pop:", err)
			continue
		}
		if !ok {
			_ = t.Wait(timeout)
			continue
		}
		fmt.Printf("[%s] [%s:%s] %s\n", rec.Kind, rec.Module, rec.Category, rec.Text)
	}
}
