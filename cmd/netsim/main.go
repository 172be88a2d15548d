// Command netsim drives the packet-level network simulator: loading a
// topology document, running it for a span of virtual time, and
// inspecting the resulting routing/spanning-tree state.
//
// Grounded on the teacher's cmd/niac entry point (root.go/main.go):
// a single cobra root command with subcommands, plain fmt output, and
// os.Exit(1) on hard failure.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
