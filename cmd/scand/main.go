// Package main is the entry point for the wastescan daemon and CLI.
package main

import (
	"os"

	"wastescan/cmd/scand/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
