package console

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Stream identifies which output stream of a child produced a line.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Tag is the bracketed, coloured label printed in front of every line.
type Tag struct {
	Name  string
	Color lipgloss.Color
}

// Prefix renders the tag without styling, e.g. "[API Error]".
func (t Tag) Prefix() string {
	return "[" + t.Name + "]"
}

// Line is a single complete line of child output.
type Line struct {
	Timestamp time.Time
	Source    string
	Stream    Stream
	Tag       Tag
	Text      string
}

// Formatter turns raw output into labelled display lines.
type Formatter struct {
	renderer *lipgloss.Renderer
}

// NewFormatter returns a formatter styling through renderer. A nil renderer
// uses the lipgloss default.
func NewFormatter(renderer *lipgloss.Renderer) Formatter {
	if renderer == nil {
		renderer = lipgloss.DefaultRenderer()
	}
	return Formatter{renderer: renderer}
}

// Format splits chunk on newlines and returns one display line per non-blank
// line, each prefixed with the coloured tag. Partial trailing lines are
// treated as complete; use a LineWriter when chunks may split lines.
func (f Formatter) Format(tag Tag, chunk string) []string {
	var out []string
	for _, raw := range SplitLines(chunk) {
		out = append(out, f.FormatLine(tag, raw))
	}
	return out
}

// FormatLine prefixes a single line of text with the coloured tag.
func (f Formatter) FormatLine(tag Tag, text string) string {
	prefix := tag.Prefix()
	if tag.Color != "" {
		prefix = f.renderer.NewStyle().Foreground(tag.Color).Render(prefix)
	}
	return prefix + " " + text
}

// SplitLines splits chunk on "\n", strips a trailing "\r" from each line and
// drops lines that are empty or whitespace only.
func SplitLines(chunk string) []string {
	if chunk == "" {
		return nil
	}
	parts := strings.Split(chunk, "\n")
	lines := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSuffix(part, "\r")
		if strings.TrimSpace(part) == "" {
			continue
		}
		lines = append(lines, part)
	}
	return lines
}
