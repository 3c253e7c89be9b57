// Package main provides the entry point for the threadsync CLI.
package main

import (
	"os"

	"github.com/raphaelgruber/threadsync/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
