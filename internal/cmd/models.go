package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/connectchat/internal/agent"
	"github.com/dotcommander/connectchat/internal/config"
	"github.com/dotcommander/connectchat/internal/present"
)

func newModelsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the chat models offered to clients",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := rt.ready(); err != nil {
				return err
			}
			models, def := agent.New(&rt.cfg).Models()
			printModels(os.Stdout, models, def)
			return nil
		},
	}
}

func printModels(w io.Writer, models []config.ChatModel, def string) {
	styles := present.StdoutStyles()
	for _, m := range models {
		line := styles.Flag.Render(m.ID)
		if m.Name != "" {
			line += " " + m.Name
		}
		if m.ID == def {
			line += styles.Timeago.Render(" (default)")
		}
		fmt.Fprintln(w, line)
		if m.Description != "" {
			fmt.Fprintln(w, "  "+styles.Comment.Render(m.Description))
		}
	}
}
