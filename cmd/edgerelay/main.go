// Command edgerelay buffers machine telemetry read from stdin and uploads it
// to the cloud.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/edgerelay/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
