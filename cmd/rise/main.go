// Package main is the single-binary entrypoint for Rise.
// Rise keeps habits honest — one binary, local state, no accounts.
package main

import "github.com/rise-habits/rise/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
