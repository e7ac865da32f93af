package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/ledgerd/internal/cli"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cmd := cli.NewRootCommand()
	cmd.Version = fmt.Sprintf("%s (%s)", version, commit)

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		// Command output has already been written; the error goes to stderr.
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
