// Package main is the entry point for the nodeboot CLI.
//
// nodeboot drives freshly requested cloud instances through boot,
// stabilization and setup until every node runs the cluster coordination
// agent, tolerating reboots and transient failures along the way.
//
// Commands: bootstrap, terminate, validate, version.
//
// For detailed usage information, run:
//
//	nodeboot --help
package main

import (
	"fmt"
	"os"

	"github.com/skyward-cloud/nodeboot/cmd/nodeboot/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
