package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/dotcommander/connectchat/internal/errs"
)

const installPkg = "github.com/dotcommander/connectchat@latest"

func newUpgradeCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade connectchat to the latest version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt.stderrf("Current version: %s\nUpgrading via go install %s ...\n", rt.build.Version, installPkg)

			gobin, err := exec.LookPath("go")
			if err != nil {
				return errs.Wrap(err, "Could not find go in your PATH.")
			}

			install := exec.CommandContext(cmd.Context(), gobin, "install", installPkg)
			install.Stdout = os.Stdout
			install.Stderr = os.Stderr
			if err := install.Run(); err != nil {
				return errs.Wrap(fmt.Errorf("go install: %w", err), "Upgrade failed.")
			}

			rt.stderrf("Upgrade complete.\n")
			return nil
		},
	}
}
