package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	promptFetchTimeout = 10 * time.Second
	maxPromptBytes     = 2 << 20
	maxErrorBodyBytes  = 8 << 10
	frontmatterFence   = "---"
)

var errNoClosingFence = errors.New("invalid markdown frontmatter: missing closing delimiter")

// LoadMsg resolves the system setting to prompt text. The setting is either
// the prompt itself, an http(s) URL serving it, or a file:// path. Markdown
// files lose their YAML frontmatter.
func LoadMsg(ctx context.Context, msg string) (string, error) {
	switch {
	case strings.HasPrefix(msg, "https://"), strings.HasPrefix(msg, "http://"):
		return fetchPrompt(ctx, msg)
	case strings.HasPrefix(msg, "file://"):
		return readPromptFile(strings.TrimPrefix(msg, "file://"))
	default:
		return msg, nil
	}
}

func fetchPrompt(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, promptFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch system prompt: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch system prompt: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", fmt.Errorf("fetch system prompt: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	// one byte over the cap tells a full prompt from a truncated one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPromptBytes+1))
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	if len(body) > maxPromptBytes {
		return "", fmt.Errorf("read system prompt: larger than %d bytes", maxPromptBytes)
	}
	return string(body), nil
}

func readPromptFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt file: %w", err)
	}
	if !strings.EqualFold(filepath.Ext(path), ".md") {
		return string(b), nil
	}
	return StripYAMLFrontmatter(string(b))
}

// StripYAMLFrontmatter drops a leading YAML block fenced by "---" lines.
// Content without frontmatter is returned unchanged; an unterminated or
// unparsable block is an error.
func StripYAMLFrontmatter(content string) (string, error) {
	first, rest, found := strings.Cut(content, "\n")
	if strings.TrimSpace(first) != frontmatterFence {
		return content, nil
	}
	if !found {
		return "", errNoClosingFence
	}

	var front []string
	lines := strings.Split(rest, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != frontmatterFence {
			front = append(front, line)
			continue
		}
		var parsed map[string]any
		if err := yaml.Unmarshal([]byte(strings.Join(front, "\n")), &parsed); err != nil {
			return "", fmt.Errorf("invalid markdown frontmatter: %w", err)
		}
		return strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\r\n"), nil
	}
	return "", errNoClosingFence
}
