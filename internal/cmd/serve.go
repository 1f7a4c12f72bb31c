package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dotcommander/connectchat/internal/errs"
	"github.com/dotcommander/connectchat/internal/present"
	"github.com/dotcommander/connectchat/internal/server"
)

func newServeCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.ready(); err != nil {
				return err
			}
			return rt.serve(cmd)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&rt.cfg.Addr, "addr", rt.cfg.Addr, helpText["addr"])
	flags.IntVar(&rt.cfg.MaxSteps, "max-steps", rt.cfg.MaxSteps, helpText["max-steps"])
	flags.StringVar(&rt.cfg.System, "system", rt.cfg.System, helpText["system"])
	flags.BoolVar(&rt.cfg.NoCache, "no-cache", rt.cfg.NoCache, helpText["no-cache"])
	flags.StringVarP(&rt.cfg.HTTPProxy, "http-proxy", "x", rt.cfg.HTTPProxy, helpText["http-proxy"])
	return cmd
}

func (rt *runtime) serve(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := rt.openStore()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close() //nolint:errcheck
	}

	if _, err := rt.connectTools(); err != nil {
		rt.logger.Warn("connected accounts are disabled", "err", err)
	}
	svc := rt.newService(store)
	e := server.New(server.NewHandler(svc, store, rt.logger))

	if !rt.quiet {
		fmt.Fprintln(os.Stderr, present.Banner(present.StderrStyles().AppName, cmd.Root().Name(), rt.cfg.Addr))
	}
	rt.logger.Info("starting server", "addr", rt.cfg.Addr, "model", rt.cfg.Model, "history", store != nil)
	if err := server.Serve(ctx, e, rt.cfg.Addr); err != nil {
		return errs.Wrapf(err, "Could not serve on %s.", rt.cfg.Addr)
	}
	rt.logger.Info("server stopped")
	return nil
}
