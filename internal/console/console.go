package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// ANSI palette used for labels and notices.
const (
	ColorRed     = lipgloss.Color("1")
	ColorGreen   = lipgloss.Color("2")
	ColorYellow  = lipgloss.Color("3")
	ColorBlue    = lipgloss.Color("4")
	ColorMagenta = lipgloss.Color("5")
	ColorCyan    = lipgloss.Color("6")
)

// NoticeKind selects the styling of a supervisor notice.
type NoticeKind int

const (
	NoticePlain NoticeKind = iota
	NoticeInfo
	NoticeSuccess
	NoticeWarning
	NoticeError
	NoticeMuted
	// NoticeAccess renders Label in bold followed by Text, e.g. "API: http://...".
	NoticeAccess
)

// Notice is a one-off message emitted by workit itself rather than a child.
type Notice struct {
	Kind  NoticeKind
	Label string
	Text  string
	// Leading inserts an empty line before the notice.
	Leading bool
}

// Option configures a Console.
type Option func(*Console)

// WithColorProfile forces the colour profile instead of detecting it from the
// output writer. termenv.Ascii disables colour entirely.
func WithColorProfile(profile termenv.Profile) Option {
	return func(c *Console) {
		c.profile = &profile
	}
}

// Console is the shared terminal sink. Child stdout lines and notices go to
// the standard writer, child stderr lines and error notices to the error
// writer. All writes are serialized.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	errOut   io.Writer
	renderer *lipgloss.Renderer
	format   Formatter
	profile  *termenv.Profile
}

// New constructs a Console writing to out and errOut. Nil writers default to
// os.Stdout and os.Stderr.
func New(out, errOut io.Writer, opts ...Option) *Console {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	c := &Console{out: out, errOut: errOut}
	for _, opt := range opts {
		opt(c)
	}
	c.renderer = lipgloss.NewRenderer(out)
	if c.profile != nil {
		c.renderer.SetColorProfile(*c.profile)
	}
	c.format = NewFormatter(c.renderer)
	return c
}

// Formatter exposes the formatter bound to this console's renderer.
func (c *Console) Formatter() Formatter {
	return c.format
}

// Line writes a single formatted child line.
func (c *Console) Line(line Line) {
	w := c.out
	if line.Stream == StreamStderr {
		w = c.errOut
	}
	text := c.format.FormatLine(line.Tag, line.Text)
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(w, text)
}

// Notice writes a styled workit message.
func (c *Console) Notice(n Notice) {
	w := c.out
	if n.Kind == NoticeError {
		w = c.errOut
	}
	text := c.renderNotice(n)
	c.mu.Lock()
	defer c.mu.Unlock()
	if n.Leading {
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, text)
}

// Banner prints the block-letter banner followed by tagline.
func (c *Console) Banner(tagline string) {
	art := c.renderer.NewStyle().Bold(true).Foreground(ColorMagenta).Render(bannerArt)
	tag := c.renderer.NewStyle().Foreground(ColorCyan).Render(tagline)
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s\n\n%s\n\n", art, tag)
}

func (c *Console) renderNotice(n Notice) string {
	style := c.renderer.NewStyle()
	switch n.Kind {
	case NoticeInfo:
		return style.Bold(true).Render(n.Text)
	case NoticeSuccess:
		return style.Foreground(ColorGreen).Render(n.Text)
	case NoticeWarning:
		return style.Foreground(ColorYellow).Render(n.Text)
	case NoticeError:
		return style.Foreground(ColorRed).Render(n.Text)
	case NoticeMuted:
		return style.Faint(true).Render(n.Text)
	case NoticeAccess:
		return style.Bold(true).Render(n.Label+":") + " " + n.Text
	default:
		return n.Text
	}
}

const bannerArt = `
██╗    ██╗ ██████╗ ██████╗ ██╗  ██╗██╗████████╗
██║    ██║██╔═══██╗██╔══██╗██║ ██╔╝██║╚══██╔══╝
██║ █╗ ██║██║   ██║██████╔╝█████╔╝ ██║   ██║
██║███╗██║██║   ██║██╔══██╗██╔═██╗ ██║   ██║
╚███╔███╔╝╚██████╔╝██║  ██║██║  ██╗██║   ██║
 ╚══╝╚══╝  ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝   ╚═╝`
