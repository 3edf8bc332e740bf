// Package main is the entry point for the acat CLI tool.
package main

import (
	"os"

	"github.com/aidanlsb/assetcat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
