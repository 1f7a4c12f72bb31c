package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	timeago "github.com/caarlos0/timea.go"
	"github.com/charmbracelet/huh"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/dotcommander/connectchat/internal/errs"
	"github.com/dotcommander/connectchat/internal/present"
	"github.com/dotcommander/connectchat/internal/proto"
	"github.com/dotcommander/connectchat/internal/storage"
)

func newHistoryCmd(rt *runtime) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Manage saved conversations",
	}

	historyCmd.AddCommand(newHistoryListCmd(rt))
	historyCmd.AddCommand(newHistoryShowCmd(rt))
	historyCmd.AddCommand(newHistoryDeleteCmd(rt))
	historyCmd.AddCommand(newHistoryPruneCmd(rt))

	return historyCmd
}

func newHistoryListCmd(rt *runtime) *cobra.Command {
	var raw bool
	var user string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved conversations",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := rt.ready(); err != nil {
				return err
			}
			return rt.withStore(func(store *storage.Store) error {
				return listConversations(store, user, raw || !present.IsInputTTY() || !present.IsOutputTTY())
			})
		},
	}
	cmd.Flags().BoolVarP(&raw, "raw", "r", false, "Print a plain list")
	cmd.Flags().StringVarP(&user, "user", "u", "", "Only list the conversations of this external user")
	return cmd
}

func newHistoryShowCmd(rt *runtime) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show [id-or-title]",
		Short: "Show a saved conversation, the latest by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := rt.ready(); err != nil {
				return err
			}
			drainStdin()
			var in string
			if len(args) == 1 {
				in = args[0]
			}
			return rt.withStore(func(store *storage.Store) error {
				return showConversation(os.Stdout, store, in, raw, rt.cfg.WordWrap)
			})
		},
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return rt.completeConversations(cmd, args, toComplete)
		},
	}
	cmd.Flags().BoolVarP(&raw, "raw", "r", false, helpText["raw"])
	return cmd
}

func newHistoryDeleteCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id-or-title> [more...]",
		Short: "Delete saved conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := rt.ready(); err != nil {
				return err
			}
			return rt.withStore(func(store *storage.Store) error {
				return deleteConversations(rt.status(), store, args)
			})
		},
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return rt.completeConversations(cmd, args, toComplete)
		},
	}
}

func newHistoryPruneCmd(rt *runtime) *cobra.Command {
	var olderThan time.Duration
	var yes bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete conversations older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := rt.ready(); err != nil {
				return err
			}
			if olderThan <= 0 {
				return errs.Wrap(errs.UserErrorf("missing --older-than"), "Could not delete old conversations.")
			}
			return rt.withStore(func(store *storage.Store) error {
				confirm := confirmPrune
				if yes || rt.quiet {
					confirm = nil
				}
				return pruneConversations(rt.status(), store, olderThan, confirm)
			})
		},
	}
	cmd.Flags().Var(newDurationFlag(olderThan, &olderThan), "older-than", helpText["older-than"])
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking")
	return cmd
}

// withStore runs fn with the conversation store.
func (rt *runtime) withStore(fn func(*storage.Store) error) error {
	store, err := rt.openStore()
	if err != nil {
		return err
	}
	if store == nil {
		return errs.Error{Reason: "Conversation history is disabled."}
	}
	defer store.Close() //nolint:errcheck
	return fn(store)
}

// status is where progress messages go; nil when quiet.
func (rt *runtime) status() io.Writer {
	if rt.quiet {
		return nil
	}
	return os.Stderr
}

func listConversations(store *storage.Store, user string, raw bool) error {
	records := store.Index().List()
	if user != "" {
		records = store.Index().ListFor(user)
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "No conversations found.")
		return nil
	}
	if raw {
		printList(os.Stdout, records)
		return nil
	}
	selectFromList(records)
	return nil
}

func showConversation(w io.Writer, store *storage.Store, in string, raw bool, wordWrap int) error {
	rec, exact, err := findConversation(store.Index(), in)
	if err != nil {
		return errs.Wrap(err, "There was an error loading the conversation.")
	}
	if in != "" && !exact {
		return errs.Wrap(fmt.Errorf("%w: %s", storage.ErrNoMatches, in), "There was an error loading the conversation.")
	}
	_, msgs, err := store.Load(rec.ID)
	if err != nil {
		return errs.Wrap(err, "There was an error loading the conversation.")
	}
	fmt.Fprint(w, present.MaybeRenderMarkdown(proto.Conversation(msgs).String(), wordWrap, raw))
	return nil
}

func deleteConversations(status io.Writer, store *storage.Store, targets []string) error {
	for _, target := range targets {
		rec, err := store.Index().Find(target)
		if err != nil {
			return errs.Wrap(err, "Couldn't find conversation to delete.")
		}
		if err := deleteConversation(status, store, rec.ID); err != nil {
			return err
		}
	}
	return nil
}

func deleteConversation(status io.Writer, store *storage.Store, id string) error {
	if err := store.Delete(id); err != nil {
		return errs.Wrap(err, "Couldn't delete conversation.")
	}
	if status != nil {
		fmt.Fprintln(status, "Conversation deleted:", id[:min(len(id), storage.SHA1MinLen)])
	}
	return nil
}

// pruneConversations deletes the conversations not updated within olderThan.
// When confirm is set it is asked first and a false answer aborts.
func pruneConversations(status io.Writer, store *storage.Store, olderThan time.Duration, confirm func(time.Duration, int) (bool, error)) error {
	records := store.Index().ListOlderThan(olderThan)
	if len(records) == 0 {
		if status != nil {
			fmt.Fprintln(status, "No conversations found.")
		}
		return nil
	}

	if confirm != nil {
		printList(os.Stdout, records)
		ok, err := confirm(olderThan, len(records))
		if err != nil {
			return err
		}
		if !ok {
			//nolint:wrapcheck
			return errs.UserErrorf("Aborted by user")
		}
	}

	for _, rec := range records {
		if err := deleteConversation(status, store, rec.ID); err != nil {
			return err
		}
	}
	return nil
}

func confirmPrune(olderThan time.Duration, n int) (bool, error) {
	if !present.IsOutputTTY() || !present.IsInputTTY() {
		fmt.Fprintln(os.Stderr)
		//nolint:wrapcheck
		return false, errs.UserErrorf(
			"To delete the conversations above, run: %s",
			strings.Join(append(os.Args, "--yes"), " "),
		)
	}
	var ok bool
	if err := huh.Run(
		huh.NewConfirm().
			Title(fmt.Sprintf("Delete conversations older than %s?", olderThan)).
			Description(fmt.Sprintf("This will delete all the %d conversations listed above.", n)).
			Value(&ok),
	); err != nil {
		return false, errs.Wrap(err, "Couldn't delete old conversations.")
	}
	return ok, nil
}

func makeOptions(records []storage.Record) []huh.Option[string] {
	styles := present.StdoutStyles()
	opts := make([]huh.Option[string], 0, len(records))
	for _, rec := range records {
		left := styles.SHA1.Render(shortSHA(rec.ID))
		right := styles.ConversationList.Render(rec.Title, styles.Timeago.Render(timeago.Of(rec.UpdatedAt)))
		if rec.Model != "" {
			right += styles.Comment.Render(rec.Model)
		}
		if rec.API != "" {
			right += styles.Comment.Render(" (" + rec.API + ")")
		}
		opts = append(opts, huh.NewOption(left+" "+right, rec.ID))
	}
	return opts
}

func selectFromList(records []storage.Record) {
	var selected string
	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Conversations").
				Value(&selected).
				Options(makeOptions(records)...),
		),
	).Run(); err != nil {
		if !errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		return
	}

	_ = clipboard.WriteAll(selected)
	termenv.Copy(selected)
	present.PrintConfirmation(os.Stdout, present.StdoutRenderer(), "COPIED", selected)

	styles := present.StdoutStyles()
	fmt.Println(styles.Comment.Render("You can use this conversation ID with the following commands:"))
	for _, s := range []string{
		"connectchat history show " + selected,
		"connectchat chat --continue " + selected,
		"connectchat history delete " + selected,
	} {
		fmt.Printf("  %s\n", styles.InlineCode.Render(s))
	}
}

func printList(w io.Writer, records []storage.Record) {
	styles := present.StdoutStyles()
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			styles.SHA1.Render(shortSHA(rec.ID)),
			rec.Title,
			styles.Timeago.Render(timeago.Of(rec.UpdatedAt)),
		)
	}
}
