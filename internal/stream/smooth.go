package stream

import (
	"context"
	"regexp"
)

// unit is one run of non-whitespace with the whitespace around it.
var unit = regexp.MustCompile(`\s*\S+\s*`)

// Smooth rechunks text deltas into whitespace-delimited units.
//
// A unit is emitted as soon as it is known to be complete, that is when more
// text follows it. The trailing partial unit is held back until more text
// arrives, a non-text part arrives, or the input closes. Every other part type
// is forwarded unchanged, after any buffered text.
func Smooth(ctx context.Context, in <-chan Part) <-chan Part {
	out := make(chan Part)
	go func() {
		defer close(out)

		send := func(p Part) bool {
			select {
			case out <- p:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var pending string
		flush := func() bool {
			if pending == "" {
				return true
			}
			text := pending
			pending = ""
			return send(Part{Type: PartText, Text: text})
		}

		for p := range in {
			if p.Type != PartText {
				if !flush() || !send(p) {
					return
				}
				continue
			}

			pending += p.Text
			for {
				loc := unit.FindStringIndex(pending)
				if loc == nil || loc[1] == len(pending) {
					break
				}
				chunk := pending[:loc[1]]
				pending = pending[loc[1]:]
				if !send(Part{Type: PartText, Text: chunk}) {
					return
				}
			}
		}
		flush()
	}()
	return out
}
