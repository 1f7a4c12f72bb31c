package present

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/glamour"
)

const markdownTabWidth = 4

// RenderMarkdown renders an assistant reply for terminal output.
func RenderMarkdown(input string, wordWrap int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return "", fmt.Errorf("new markdown renderer: %w", err)
	}

	out, err := r.Render(input)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	out = strings.TrimRightFunc(out, unicode.IsSpace)
	out = strings.ReplaceAll(out, "\t", strings.Repeat(" ", markdownTabWidth))
	return out + "\n", nil
}

// MaybeRenderMarkdown renders input when stdout is a terminal and raw is not
// set. Rendering failures fall back to the plain input.
func MaybeRenderMarkdown(input string, wordWrap int, raw bool) string {
	if raw || !IsOutputTTY() {
		return input
	}
	out, err := RenderMarkdown(input, wordWrap)
	if err != nil {
		return input
	}
	return out
}
