// Package main is the entry point for the courier CLI.
package main

import (
	"context"
	"os"

	"github.com/mrz1836/courier/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
