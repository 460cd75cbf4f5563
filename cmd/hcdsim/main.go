// Command hcdsim runs host controller scenarios against the software core
// and lists the controller profiles it knows about.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
