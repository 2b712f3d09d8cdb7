// Command rxstore runs, tests and inspects reactive runtime scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rxstore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
