// Package main is the entry point for automlctl, the terminal client for the
// AutoML Pro portal API.
package main

import (
	"os"

	"github.com/kiranshivaraju/automlpro/cmd/automlctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
