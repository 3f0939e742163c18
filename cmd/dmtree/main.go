// dmtree inspects the object tree of a DreamMaker environment.
// Load, browse, encode, and watch types from the command line.
package main

import (
	"os"

	"github.com/corey/dmtree/cmd/dmtree/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
