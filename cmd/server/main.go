// Package main is the entry point for the bookshelf auth service.
package main

import (
	"os"

	"github.com/utafrali/bookshelf/internal/app"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = app.Version

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
