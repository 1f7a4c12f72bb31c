package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMsg(t *testing.T) {
	const content = "just text"

	t.Run("normal msg", func(t *testing.T) {
		msg, err := LoadMsg(t.Context(), content)
		require.NoError(t, err)
		require.Equal(t, content, msg)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "foo.txt")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		msg, err := LoadMsg(t.Context(), "file://"+path)
		require.NoError(t, err)
		require.Equal(t, content, msg)
	})

	t.Run("markdown file strips yaml frontmatter", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "role.md")
		md := "---\nname: helper\nstyle: calm\n---\nYou are concise and direct.\n"
		require.NoError(t, os.WriteFile(path, []byte(md), 0o644))

		msg, err := LoadMsg(t.Context(), "file://"+path)
		require.NoError(t, err)
		require.Equal(t, "You are concise and direct.\n", msg)
	})

	t.Run("markdown file with invalid frontmatter errors", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "role.md")
		md := "---\nname: [broken\n---\ncontent"
		require.NoError(t, os.WriteFile(path, []byte(md), 0o644))

		_, err := LoadMsg(t.Context(), "file://"+path)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid markdown frontmatter")
	})

	t.Run("url", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(content))
		}))
		t.Cleanup(srv.Close)

		msg, err := LoadMsg(t.Context(), srv.URL)
		require.NoError(t, err)
		require.Equal(t, content, msg)
	})

	t.Run("url error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		t.Cleanup(srv.Close)

		_, err := LoadMsg(t.Context(), srv.URL)
		require.ErrorContains(t, err, "HTTP 404")
	})
}

func TestStripYAMLFrontmatter(t *testing.T) {
	for name, tc := range map[string]struct {
		in, out string
		err     bool
	}{
		"no frontmatter": {in: "# Title\nbody", out: "# Title\nbody"},
		"empty":          {in: "", out: ""},
		"frontmatter":    {in: "---\na: 1\n---\n\nbody\n", out: "body\n"},
		"empty block":    {in: "---\n---\nbody", out: "body"},
		"fence only":     {in: "---", err: true},
		"unterminated":   {in: "---\na: 1\nbody", err: true},
		"invalid yaml":   {in: "---\na: [\n---\nbody", err: true},
	} {
		t.Run(name, func(t *testing.T) {
			out, err := StripYAMLFrontmatter(tc.in)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.out, out)
		})
	}
}
