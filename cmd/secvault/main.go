package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"

	"github.com/systmms/secvault/cmd/secvault/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		memguard.SafeExit(1)
	}
}

func run() error {
	rootCmd := commands.NewRootCommand(fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))
	return rootCmd.Execute()
}
