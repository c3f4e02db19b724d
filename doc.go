// Package conduit implements a cross-process shared-memory message
// transport: a lock-free single-producer/single-consumer cyclic byte
// buffer in a memory-mapped file, a cooperative cross-process lock, a
// framed message-dispatch buffer with doorbell notification, and a
// message unit multiplexing categorized log/trace/report/operational
// records over it.
//
// # Quick Start
//
// One process initializes the transport (becoming the consumer side,
// owning the buffer's lifetime):
//
//	t, err := conduit.Initialize(conduit.Settings{
//		BasePath:   "/tmp/myapp",
//		Identifier: "events",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer t.Close()
//
//	cat := t.Announce(conduit.Logging, "core", "startup", true)
//
// Another process attaches as the producer side, typically after
// inheriting Settings through the environment:
//
//	settings, ok := messaging.LoadFromEnv()
//	if !ok {
//		log.Fatal("CONDUIT_MESSAGING not set")
//	}
//	t, err := conduit.Attach(settings)
//
// # Pushing and popping records
//
//	t.Push(cat, "service starting")
//	rec, ok, err := t.Pop()
//
// # Console capture
//
// A process can route its own stdout/stderr through the transport as
// OperationalStream records:
//
//	t.RedirectStdout()
//	t.RedirectStderr()
//
// # Remote category control
//
// Any process can list or toggle categories over the RPC endpoint served
// by the initializing process, at <BasePath>/<Identifier>.rpc:
//
//	client, _ := messaging.DialRPC(filepath.Join(settings.BasePath, settings.Identifier+".rpc"))
//	entries, _ := client.List()
//	client.Update(control.Entry{Kind: conduit.Logging, Enabled: false})
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package conduit
