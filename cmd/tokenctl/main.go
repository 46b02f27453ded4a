package main

import (
	"os"

	"github.com/ErlanBelekov/token-ledger/internal/cli"
)

func main() {
	// cobra has already printed the error and usage.
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
