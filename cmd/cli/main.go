// Package main is the entry point for the gridbase CLI binary.
package main

import (
	"os"

	cli "gridbase/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
