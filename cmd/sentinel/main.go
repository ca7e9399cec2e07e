// Command sentinel is the SentinelSecure control-plane CLI.
package main

import (
	"os"

	"github.com/sentinelsec/sentinel/cmd/cli"
)

// Build information, injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
