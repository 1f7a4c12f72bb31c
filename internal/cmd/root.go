// Package cmd implements the connectchat command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	glamour "github.com/charmbracelet/glamour/styles"
	"github.com/spf13/cobra"

	"github.com/dotcommander/connectchat/internal/agent"
	"github.com/dotcommander/connectchat/internal/config"
	"github.com/dotcommander/connectchat/internal/connect"
	"github.com/dotcommander/connectchat/internal/errs"
	"github.com/dotcommander/connectchat/internal/logging"
	"github.com/dotcommander/connectchat/internal/mcp"
	"github.com/dotcommander/connectchat/internal/storage"
)

type runtime struct {
	build  BuildInfo
	cfg    config.Config
	cfgErr error
	quiet  bool
	logger *log.Logger

	// clientFactory replaces the model backend, for tests.
	clientFactory agent.ClientFactory
}

// NewRootCmd constructs the Cobra root command.
func NewRootCmd(build BuildInfo, cfg config.Config, cfgErr error) *cobra.Command {
	// XXX: unset error styles in Glamour dark and light styles.
	glamour.DarkStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)
	glamour.LightStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)

	rt := &runtime{build: normalizeBuildInfo(build), cfg: cfg, cfgErr: cfgErr, logger: log.Default()}

	rootCmd := &cobra.Command{
		Use:           "connectchat",
		Short:         "Chat with models that can use your connected accounts.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example:       randomExample(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.setupLogging(cmd)
		},
	}

	rootCmd.SetUsageFunc(usageFunc)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newFlagParseError(err)
	})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.Version = rt.build.Version
	rootCmd.SetVersionTemplate(versionTemplate(rt.build))

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rt.cfg.LogLevel, "log-level", rt.cfg.LogLevel, helpText["log-level"])
	flags.StringVar(&rt.cfg.LogFormat, "log-format", rt.cfg.LogFormat, helpText["log-format"])
	flags.BoolVarP(&rt.quiet, "quiet", "q", false, helpText["quiet"])

	rootCmd.AddCommand(newServeCmd(rt))
	rootCmd.AddCommand(newChatCmd(rt))
	rootCmd.AddCommand(newModelsCmd(rt))
	rootCmd.AddCommand(newToolsCmd(rt))
	rootCmd.AddCommand(newHistoryCmd(rt))
	rootCmd.AddCommand(newConfigCmd(rt))
	rootCmd.AddCommand(newMCPCmd(rt))
	rootCmd.AddCommand(newManCmd(rootCmd))
	rootCmd.AddCommand(newUpgradeCmd(rt))

	rootCmd.InitDefaultCompletionCmd()

	return rootCmd
}

// setupLogging installs the process logger. Configuration errors are
// reported by the commands that need a valid configuration.
func (rt *runtime) setupLogging(cmd *cobra.Command) error {
	logger, err := logging.Setup(cmd.ErrOrStderr(), logging.Options{
		Level:  rt.cfg.LogLevel,
		Format: rt.cfg.LogFormat,
		Prefix: cmd.Root().Name(),
	})
	if err != nil {
		return errs.Wrap(err, "Invalid logging settings.")
	}
	rt.logger = logger
	return nil
}

// ready fails with the configuration error, if any.
func (rt *runtime) ready() error {
	return rt.cfgErr
}

// openStore opens the conversation store, or returns nil when history is
// disabled.
func (rt *runtime) openStore() (*storage.Store, error) {
	if rt.cfg.NoCache {
		return nil, nil
	}
	store, err := storage.Open(rt.cfg.CachePath)
	if err != nil {
		return nil, errs.Wrap(err, "Could not open the conversation store.")
	}
	return store, nil
}

// newService wires the chat service with every configured tool source.
func (rt *runtime) newService(store *storage.Store) *agent.Service {
	opts := []agent.ServiceOption{
		agent.WithMCP(mcp.New(&rt.cfg)),
		agent.WithServiceLogger(rt.logger),
	}
	if store != nil {
		opts = append(opts, agent.WithStore(store))
	}
	if rt.clientFactory != nil {
		opts = append(opts, agent.WithClientFactory(rt.clientFactory))
	}
	tools, err := rt.connectTools()
	switch {
	case err != nil:
		rt.logger.Debug("connected accounts are disabled", "err", err)
	case tools != nil:
		opts = append(opts, agent.WithConnect(tools))
	}
	return agent.New(&rt.cfg, opts...)
}

// connectTools returns the connected-accounts tool source, or nil when it is
// turned off in the settings.
func (rt *runtime) connectTools() (agent.ConnectTools, error) {
	if rt.cfg.ConnectDisable {
		return nil, nil
	}
	client, err := connect.Shared(
		connect.WithMCPURL(rt.cfg.ConnectMCPURL),
		connect.WithTimeout(rt.cfg.MCPTimeout),
		connect.WithLogger(rt.logger),
	)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return client.Provider, nil
}

func (rt *runtime) stderrf(format string, args ...any) {
	if rt.quiet {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}
