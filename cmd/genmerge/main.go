// Command genmerge merges generated model elements into CUE models and
// records each run for tracing and replay.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/genmerge/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	cmd.SilenceErrors = true
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "genmerge: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
