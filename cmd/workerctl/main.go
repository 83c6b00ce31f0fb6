// Command workerctl inspects and self-tests the worker runtime over the
// in-process fake transport — no real network or device required.
package main

import (
	"os"

	"github.com/coriolis-systems/workercore/cmd/workerctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
