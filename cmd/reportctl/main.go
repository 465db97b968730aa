// Command reportctl inspects the report ledger from a terminal: it computes
// fingerprints offline and runs the read-only triage queries against the
// database configured in the environment.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(newEnv()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
