// tgdrive - command-line client for a drive backend
//
// Browse folders, move files around and run uploads and downloads from the
// terminal. See 'tgdrive --help' for the command list.
//
// Build with: go build -ldflags "-X github.com/tgdrive/tgdrive/internal/version.Version=vX.Y.Z"
package main

import (
	"os"

	"github.com/tgdrive/tgdrive/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
