// Package main provides the entry point for the amanrecall CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/amanrecall/cmd/amanrecall/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
