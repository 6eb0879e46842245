// Command wf is the weaveforge CLI: build, clean, graph, and infer
// subcommands over a content-addressed, wave-scheduled build graph.
package main

import (
	"context"
	"os"

	"weaveforge/internal/wfcli"
)

func main() {
	os.Exit(wfcli.Main(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
