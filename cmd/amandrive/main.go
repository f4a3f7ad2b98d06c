// Package main provides the entry point for the amandrive CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/amandrive/cmd/amandrive/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
