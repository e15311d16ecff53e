// Package main provides the entry point for the searchctl admin CLI.
package main

import (
	"os"

	"github.com/sedirimou/Gameva-sub003/cmd/searchctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
