// Package main provides the entry point for the retrieverd CLI.
package main

import (
	"os"

	"github.com/cortexkb/retrieval-engine/cmd/retrieverd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
