// drive-index - terminal client for a serverless cloud-drive index worker.
//
// Build with: go build -ldflags "-X github.com/driveindex/drive-index/internal/version.Version=vX.Y.Z" ./cmd/drive-index
package main

import (
	"os"

	"github.com/driveindex/drive-index/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
