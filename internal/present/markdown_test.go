package present

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"
)

func TestRenderMarkdown(t *testing.T) {
	out, err := RenderMarkdown("hello\tworld\n", 80)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(out, "\n"))
	require.NotContains(t, out, "\t")
}

func TestMaybeRenderMarkdownRaw(t *testing.T) {
	require.Equal(t, "# title\n", MaybeRenderMarkdown("# title\n", 80, true))
}

func TestGradientText(t *testing.T) {
	require.Equal(t, "ab", MakeGradientText(lipgloss.NewStyle(), "ab"))
	require.Len(t, MakeGradientRamp(5), 5)
	require.Equal(t, []int{3, 2, 1}, Reverse([]int{1, 2, 3}))
}

func TestBanner(t *testing.T) {
	out := Banner(lipgloss.NewStyle(), "connectchat", "127.0.0.1:8080")
	require.Contains(t, out, "127.0.0.1:8080")
}

func TestPrintConfirmation(t *testing.T) {
	var sb strings.Builder
	PrintConfirmation(&sb, lipgloss.NewRenderer(&sb), "", "abc1234")
	require.Contains(t, sb.String(), "WROTE")
	require.Contains(t, sb.String(), "abc1234")
}
