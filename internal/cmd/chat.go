package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dotcommander/connectchat/internal/agent"
	"github.com/dotcommander/connectchat/internal/errs"
	"github.com/dotcommander/connectchat/internal/present"
	"github.com/dotcommander/connectchat/internal/proto"
	"github.com/dotcommander/connectchat/internal/storage"
	"github.com/dotcommander/connectchat/internal/stream"
)

type chatFlags struct {
	plan planOptions
	user string
	apps []string
	raw  bool
}

func newChatCmd(rt *runtime) *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Send one chat turn and stream the reply",
		Long:  "Send one chat turn and stream the reply. Piped input is appended to the prompt.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.ready(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			piped, err := readStdin()
			if err != nil {
				return errs.Wrap(err, "Could not read the piped input.")
			}
			return rt.chat(ctx, joinPrompt(strings.Join(args, " "), piped), f, os.Stdout, os.Stderr)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.plan.Model, "model", "m", "", helpText["model"])
	flags.StringVarP(&f.plan.API, "api", "a", "", helpText["api"])
	flags.StringVarP(&f.plan.Continue, "continue", "c", "", helpText["continue"])
	flags.BoolVarP(&f.plan.ContinueLast, "continue-last", "C", false, helpText["continue-last"])
	flags.StringVarP(&f.plan.Title, "title", "t", "", helpText["title"])
	flags.StringVarP(&f.user, "user", "u", "", helpText["user"])
	flags.StringSliceVar(&f.apps, "app", nil, helpText["apps"])
	flags.BoolVarP(&f.raw, "raw", "r", false, helpText["raw"])
	flags.BoolVar(&rt.cfg.NoCache, "no-cache", rt.cfg.NoCache, helpText["no-cache"])
	flags.BoolVar(&rt.cfg.SendReasoning, "reasoning", rt.cfg.SendReasoning, helpText["reasoning"])
	flags.IntVar(&rt.cfg.MaxSteps, "max-steps", rt.cfg.MaxSteps, helpText["max-steps"])
	flags.StringVar(&rt.cfg.System, "system", rt.cfg.System, helpText["system"])
	flags.StringVarP(&rt.cfg.HTTPProxy, "http-proxy", "x", rt.cfg.HTTPProxy, helpText["http-proxy"])
	flags.Int64Var(&rt.cfg.MaxTokens, "max-tokens", rt.cfg.MaxTokens, helpText["max-tokens"])
	flags.Int64Var(&rt.cfg.MaxCompletionTokens, "max-completion-tokens", rt.cfg.MaxCompletionTokens, helpText["max-completion-tokens"])
	flags.Float64Var(&rt.cfg.Temperature, "temp", rt.cfg.Temperature, helpText["temp"])
	flags.Float64Var(&rt.cfg.TopP, "topp", rt.cfg.TopP, helpText["topp"])
	flags.Int64Var(&rt.cfg.TopK, "topk", rt.cfg.TopK, helpText["topk"])
	cmd.MarkFlagsMutuallyExclusive("continue", "continue-last")

	_ = cmd.RegisterFlagCompletionFunc("continue", rt.completeConversations)
	_ = cmd.RegisterFlagCompletionFunc("model", rt.completeModels)
	return cmd
}

func (rt *runtime) chat(ctx context.Context, prompt string, f chatFlags, stdout, stderr io.Writer) error {
	if strings.TrimSpace(prompt) == "" {
		return errs.Error{
			Reason: "You haven't provided any prompt input.",
			Err: errs.UserErrorf(
				"You can give your prompt as arguments and/or pipe it from STDIN.\nExample: %s",
				present.StderrStyles().InlineCode.Render("connectchat chat [prompt]"),
			),
		}
	}

	store, err := rt.openStore()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close() //nolint:errcheck
	}

	var idx *storage.Index
	if store != nil {
		idx = store.Index()
	}
	pl, err := planConversation(idx, f.plan)
	if err != nil {
		return err
	}

	var history []proto.Message
	if pl.ReadID != "" {
		if _, history, err = store.Load(pl.ReadID); err != nil {
			return errs.Wrap(err, "Could not load the conversation.")
		}
	}
	messages := append(history, proto.Message{Role: proto.RoleUser, Content: prompt})

	status := stderr
	if rt.quiet {
		status = nil
	}
	render := !f.raw && present.IsOutputTTY()
	var reply strings.Builder
	out := stdout
	if render {
		out = &reply
	}

	svc := rt.newService(store)
	res, err := svc.Chat(ctx, agent.Turn{
		ConversationID: pl.WriteID,
		Messages:       messages,
		Model:          pl.Model,
		API:            pl.API,
		ExternalUserID: f.user,
		Apps:           f.apps,
		Title:          pl.Title,
	}, stream.WriterSink{Out: out, Status: status})

	switch {
	case !render:
		fmt.Fprintln(stdout)
	case reply.Len() > 0:
		fmt.Fprint(stdout, present.MaybeRenderMarkdown(reply.String(), rt.cfg.WordWrap, false))
	}
	if err != nil {
		return err //nolint:wrapcheck
	}

	if store != nil && !rt.quiet {
		rec, _ := store.Index().Get(res.ConversationID)
		fmt.Fprintln(stderr,
			"\nConversation saved:",
			present.StderrStyles().InlineCode.Render(shortSHA(res.ConversationID)),
			present.StderrStyles().Comment.Render(rec.Title),
		)
	}
	return nil
}

func (rt *runtime) completeConversations(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	store, err := rt.openStore()
	if err != nil || store == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer store.Close() //nolint:errcheck
	return store.Index().Completions(toComplete), cobra.ShellCompDirectiveNoFileComp
}

func (rt *runtime) completeModels(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var out []string
	for _, api := range rt.cfg.APIs {
		for name := range api.Models {
			if strings.HasPrefix(name, toComplete) {
				out = append(out, name+"\t"+api.Name)
			}
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
