package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/x/exp/ordered"

	"github.com/dotcommander/connectchat/internal/errs"
	"github.com/dotcommander/connectchat/internal/storage"
)

// conversationPlan says which stored conversation a chat reads from and
// which one it writes to.
type conversationPlan struct {
	WriteID string
	Title   string
	ReadID  string
	API     string
	Model   string
}

type planOptions struct {
	Continue     string
	ContinueLast bool
	Title        string
	API          string
	Model        string
}

// planConversation resolves the chat flags against the index.
//
// Continuing without a new title writes back into the conversation read
// from. A continue target that matches nothing falls back to the latest
// conversation and becomes the title. A title naming an existing
// conversation writes into it.
func planConversation(idx *storage.Index, opts planOptions) (conversationPlan, error) {
	pl := conversationPlan{API: opts.API, Model: opts.Model, Title: opts.Title}
	continueLast := opts.ContinueLast || (opts.Continue != "" && opts.Title == "")

	if opts.Continue != "" || continueLast {
		if idx == nil {
			return conversationPlan{}, errs.Wrap(errs.UserErrorf("history is disabled"), "Could not find the conversation.")
		}
		found, exact, err := findConversation(idx, opts.Continue)
		if err != nil {
			return conversationPlan{}, errs.Wrap(err, "Could not find the conversation.")
		}
		pl.ReadID = found.ID
		if opts.Model == "" && found.Model != "" {
			pl.API, pl.Model = found.API, found.Model
		}
		if continueLast {
			pl.WriteID = found.ID
			title := opts.Continue
			if exact || opts.Continue == "" {
				title = found.Title
			}
			pl.Title = ordered.First(pl.Title, title)
		}
	}

	if pl.WriteID == "" && pl.Title != "" && idx != nil {
		if rec, err := idx.Find(pl.Title); err == nil && rec.Title == pl.Title {
			pl.WriteID = rec.ID
		}
	}
	if pl.WriteID == "" {
		pl.WriteID = storage.NewConversationID()
	}
	return pl, nil
}

// findConversation resolves in by ID prefix or title. An empty or unmatched
// input resolves to the latest conversation; exact reports whether in
// matched.
func findConversation(idx *storage.Index, in string) (storage.Record, bool, error) {
	if in != "" {
		rec, err := idx.Find(in)
		if err == nil {
			return rec, true, nil
		}
		if !errors.Is(err, storage.ErrNoMatches) {
			return storage.Record{}, false, fmt.Errorf("find conversation: %w", err)
		}
	}
	rec, err := idx.Latest()
	if err != nil {
		return storage.Record{}, false, fmt.Errorf("find latest conversation: %w", err)
	}
	return rec, false, nil
}
