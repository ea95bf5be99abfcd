// Command scoped runs the scope constraint algebra as a daemon
// (serve), or exercises it one-off from the command line (inspect,
// meet) against a static or live cluster topology.
package main

import (
	"os"

	"github.com/clusterscope/clusterscope/internal/obs"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		obs.Error("command failed", obs.Err(err))
		os.Exit(1)
	}
}
