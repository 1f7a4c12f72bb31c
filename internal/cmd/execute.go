package cmd

import (
	"os"

	"github.com/dotcommander/connectchat/internal/config"
)

// Execute builds the command tree and runs it, exiting non-zero on failure.
func Execute(build BuildInfo, cfg config.Config, cfgErr error) {
	root := NewRootCmd(build, cfg, cfgErr)
	if err := root.Execute(); err != nil {
		handleError(os.Stderr, err)
		os.Exit(1)
	}
}
