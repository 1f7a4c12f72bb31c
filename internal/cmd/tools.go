package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/connectchat/internal/errs"
	"github.com/dotcommander/connectchat/internal/present"
	"github.com/dotcommander/connectchat/internal/tool"
)

func newToolsCmd(rt *runtime) *cobra.Command {
	var user string
	var apps []string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools a chat turn can use",
		Long:  "List the tools a chat turn can use: the enabled MCP servers plus, with --user, the user's connected accounts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.ready(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), rt.cfg.MCPTimeout)
			defer cancel()
			return listTools(ctx, os.Stdout, rt.newService(nil).Tools(user, apps))
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", helpText["user"])
	cmd.Flags().StringSliceVar(&apps, "app", nil, helpText["apps"])
	return cmd
}

func listTools(ctx context.Context, w io.Writer, p tool.Provider) error {
	set, err := p.Tools(ctx)
	if err != nil {
		return errs.Wrap(err, "Could not list the tools.")
	}
	if len(set) == 0 {
		fmt.Fprintln(os.Stderr, "No tools available.")
		return nil
	}
	styles := present.StdoutStyles()
	for _, name := range set.Names() {
		fmt.Fprint(w, styles.ToolName.Render(name))
		if desc := set[name].Description; desc != "" {
			fmt.Fprint(w, " ", styles.Comment.Render(desc))
		}
		fmt.Fprintln(w)
	}
	return nil
}
