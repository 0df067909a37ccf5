// Package main is the entry point for the langrepl CLI.
package main

import (
	"os"

	"github.com/midodimori/langrepl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
