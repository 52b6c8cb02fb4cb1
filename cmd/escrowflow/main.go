// Command escrowflow inspects BPMN workflows and escrow datums, serves the
// escrow HTTP API, and simulates escrow lifecycles against an in-memory
// ledger.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
