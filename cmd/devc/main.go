// Package main provides the entry point for the devc CLI.
package main

import (
	"os"

	"github.com/kestrel-dev/devc/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
