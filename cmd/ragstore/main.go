// Package main provides the entry point for the ragstore CLI.
package main

import (
	"os"

	"github.com/ragstore/ragstore/cmd/ragstore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
