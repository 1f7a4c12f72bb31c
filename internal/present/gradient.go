package present

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	rampStart = "#F967DC"
	rampEnd   = "#6B50FF"
)

// MakeGradientRamp returns a color ramp of the given length.
func MakeGradientRamp(length int) []lipgloss.Color {
	start, _ := colorful.Hex(rampStart)
	end, _ := colorful.Hex(rampEnd)
	c := make([]lipgloss.Color, length)
	for i := range length {
		c[i] = lipgloss.Color(start.BlendLuv(end, float64(i)/float64(length)).Hex())
	}
	return c
}

// MakeGradientText renders str with a gradient applied rune by rune.
func MakeGradientText(baseStyle lipgloss.Style, str string) string {
	const minSize = 3
	runes := []rune(str)
	if len(runes) < minSize {
		return str
	}
	var b strings.Builder
	for i, c := range MakeGradientRamp(len(runes)) {
		b.WriteString(baseStyle.Foreground(c).Render(string(runes[i])))
	}
	return b.String()
}

// Banner is the line printed when the chat server starts.
func Banner(baseStyle lipgloss.Style, name, addr string) string {
	return fmt.Sprintf("%s listening on %s", MakeGradientText(baseStyle, name), addr)
}

// Reverse returns a copy of in in reverse order.
func Reverse[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
