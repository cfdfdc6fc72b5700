package main

import (
	"fmt"
	"os"

	"github.com/roach88/streamlog/internal/cli"
	"github.com/roach88/streamlog/internal/tempfile"
)

func main() {
	err := cli.NewRootCommand().Execute()

	// os.Exit skips deferred calls, so temporary logs are removed here.
	if pending := tempfile.Pending(); pending > 0 {
		if cleanupErr := tempfile.Cleanup(); cleanupErr != nil {
			fmt.Fprintf(os.Stderr, "failed to remove %d temporary files: %v\n", pending, cleanupErr)
		}
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
