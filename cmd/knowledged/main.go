// Package main is the entry point for the knowledged server.
package main

import (
	"os"

	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/synaptiq/knowledged/cmd/knowledged/app"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
