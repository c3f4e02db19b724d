// Command conduit-producer attaches to an existing conduit transport and
// pushes a line of text read from stdin as a single record per line, until
// stdin closes.
//
// Grounded on agilira-lethe/examples/basic_integration.go's
// narrative-example style, adapted from a library-usage demo into a real
// two-process producer/consumer pair, with flash-flags replacing the
// example's flagless style.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package main

import (
	"bufio"
	"fmt"
	"os"

	flashflags "github.com/agilira/flash-flags"

	"github.com/agilira/conduit"
)

func main() {
	fs := flashflags.New("conduit-producer")
	basePath := fs.String("base-path", "/tmp/conduit", "base directory for the transport's backing files")
	identifier := fs.String("id", "demo", "transport identifier shared with the consumer")
	module := fs.String("module", "producer", "module name to announce records under")
	category := fs.String("category", "stdin", "category name to announce records under")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "conduit-producer:", err)
		os.Exit(1)
	}

	t, err := conduit.Attach(conduit.Settings{
		BasePath:   basePath.Value(),
		Identifier: identifier.Value(),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "conduit-producer: attach:", err)
		os.Exit(1)
	}
	defer t.Close()

	cat := t.Announce(conduit.Logging, module.Value(), category.Value(), true)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := t.Push(cat, scanner.Text()); err != nil {
			fmt.Fprintln(os.Stderr, "conduit-producer: push:", err)
			os.Exit(1)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "conduit-producer: read stdin:", err)
		os.Exit(1)
	}
}
