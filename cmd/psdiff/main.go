// Command psdiff compares two profiling runs, by default the two newest runs in
// the configured output directory.
package main

import (
	"fmt"
	"os"

	"github.com/coral-mesh/pipelinescope/internal/cli"
)

func main() {
	if err := cli.ExecuteDiff(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
