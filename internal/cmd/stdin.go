package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dotcommander/connectchat/internal/present"
)

// maxStdin caps how much piped input becomes part of a prompt.
const maxStdin = 4 << 20

func drainStdin() {
	if present.IsInputTTY() {
		return
	}
	_, _ = io.Copy(io.Discard, os.Stdin)
}

// readStdin returns piped input, or "" when stdin is a terminal.
func readStdin() (string, error) {
	if present.IsInputTTY() {
		return "", nil
	}
	b, err := io.ReadAll(io.LimitReader(os.Stdin, maxStdin))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// joinPrompt combines the prompt given as arguments with piped input.
func joinPrompt(prefix, piped string) string {
	prefix = strings.TrimSpace(prefix)
	switch {
	case prefix == "":
		return piped
	case piped == "":
		return prefix
	default:
		return prefix + "\n\n" + piped
	}
}
