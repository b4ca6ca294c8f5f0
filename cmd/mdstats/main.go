// Command mdstats summarizes molecular dynamics projects stored in SQLite
// or MongoDB, from the command line or over HTTP.
package main

import (
	"os"

	"github.com/roach88/mdstats/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
