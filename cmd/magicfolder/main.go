// Package main provides the entry point for the magicfolder CLI.
package main

import (
	"os"

	"github.com/magicfolder/magicfolder/cmd/magicfolder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
