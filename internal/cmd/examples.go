package cmd

import (
	"math/rand/v2"
	"regexp"
	"slices"

	"github.com/dotcommander/connectchat/internal/present"
)

var examples = map[string]string{
	"Ask about your spreadsheets": `connectchat chat --user alice --app google_sheets "what did I add to the budget sheet this week?"`,
	"Summarize a file":            `cat notes.md | connectchat chat "turn these notes into a status update"`,
	"Serve the chat API":          `connectchat serve --addr :8080`,
	"Continue the last chat":      `connectchat chat -C "now make it shorter"`,
}

var (
	quotedRe = regexp.MustCompile(`"([^"\\]|\\.)*"`)
	pipeRe   = regexp.MustCompile(`\|`)
)

func randomExample() string {
	keys := make([]string, 0, len(examples))
	for k := range examples {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys[rand.IntN(len(keys))] //nolint:gosec
}

func cheapHighlighting(s present.Styles, code string) string {
	code = quotedRe.ReplaceAllStringFunc(code, func(x string) string {
		return s.Quote.Render(x)
	})
	return pipeRe.ReplaceAllStringFunc(code, func(x string) string {
		return s.Pipe.Render(x)
	})
}
