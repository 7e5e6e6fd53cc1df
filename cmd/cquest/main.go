// Package main is the entry point for cquest.
package main

import (
	"os"

	"github.com/brianly1003/cquest/cmd/cquest/cmd"
)

// Version information (set by ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cmd.SetVersionInfo(Version, BuildTime, GitCommit)

	if err := cmd.Execute(); err != nil {
		cmd.PrintError(err)
		os.Exit(cmd.ExitCode(err))
	}
}
