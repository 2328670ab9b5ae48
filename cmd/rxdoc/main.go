// Command rxdoc manages a local, schema-validated document collection.
package main

import (
	"os"

	"github.com/roach88/rxdoc/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
