// Package main is the entry point for the pricepilot CLI.
package main

import (
	"pricepilot/internal/cli"
)

func main() {
	cli.Execute()
}
