// Command pathorama scans web origins for paths listed in a dictionary file.
package main

import (
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/anstrom/pathorama/cmd/cli"
)

// Build information - set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	// Respect container CPU quotas before any worker pool is sized.
	_, _ = maxprocs.Set()

	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
