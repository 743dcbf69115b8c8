// Package main is the entry point for the rainbow CLI.
package main

import (
	"os"

	"github.com/rainbow-desk/rainbow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
