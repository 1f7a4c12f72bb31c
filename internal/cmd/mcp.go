package cmd

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dotcommander/connectchat/internal/config"
	imcp "github.com/dotcommander/connectchat/internal/mcp"
	"github.com/dotcommander/connectchat/internal/present"
)

func newMCPCmd(rt *runtime) *cobra.Command {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server integration",
	}

	mcpCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := rt.ready(); err != nil {
				return err
			}
			mcpList(os.Stdout, &rt.cfg)
			return nil
		},
	})

	mcpCmd.AddCommand(&cobra.Command{
		Use:   "tools",
		Short: "List tools from enabled MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.ready(); err != nil {
				return err
			}
			return listTools(cmd.Context(), os.Stdout, imcp.New(&rt.cfg))
		},
	})

	return mcpCmd
}

func mcpList(w io.Writer, cfg *config.Config) {
	svc := imcp.New(cfg)
	for _, name := range slices.Sorted(maps.Keys(cfg.MCPServers)) {
		s := name
		if svc.IsEnabled(name) {
			s += present.StdoutStyles().Timeago.Render(" (enabled)")
		}
		fmt.Fprintln(w, s)
	}
}
