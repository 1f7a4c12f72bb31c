// Package main provides the connectchat CLI and chat server.
package main

import (
	"github.com/dotcommander/connectchat/internal/cmd"
	"github.com/dotcommander/connectchat/internal/config"
)

// Build vars.
var (
	//nolint: gochecknoglobals
	Version = ""
	//nolint: gochecknoglobals
	CommitSHA = ""
)

func main() {
	cfg, cfgErr := config.Ensure()
	cmd.Execute(cmd.BuildInfo{Version: Version, CommitSHA: CommitSHA}, cfg, cfgErr)
}
