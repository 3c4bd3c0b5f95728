package supervisor

import (
	"log/slog"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Paintersrp/workit/internal/console"
	"github.com/Paintersrp/workit/internal/runtime"
)

const (
	defaultReadyDelay   = 2 * time.Second
	defaultStopTimeout  = 5 * time.Second
	defaultOutputBuffer = 1024
	drainTimeout        = 2 * time.Second
)

// ChildSpec describes one supervised child.
type ChildSpec struct {
	// Label prefixes every output line, e.g. "API" renders as "[API]" and
	// "[API Error]".
	Label string
	// Title is used in the "Starting <Title>..." notice. Defaults to Label.
	Title string
	// Runtime selects the registry entry; empty means the process runtime.
	Runtime string

	Command []string
	Dir     string
	Env     map[string]string

	// Container runtimes only.
	Image string
	Ports []string

	Color      lipgloss.Color
	ErrorColor lipgloss.Color

	// Requires lists launch targets (scripts, binaries) that must exist
	// before any child is spawned.
	Requires []string
}

// AccessPoint is advertised in the readiness notice.
type AccessPoint struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Sink receives everything the supervisor prints.
type Sink interface {
	Line(console.Line)
	Notice(console.Notice)
}

// Config is the immutable configuration of a Supervisor.
type Config struct {
	Children     []ChildSpec
	AccessPoints []AccessPoint

	// AppName appears in the readiness notice.
	AppName string
	// ReadyDelay is how long after Start the readiness notice is printed.
	// The notice is a courtesy and does not probe the children. Zero uses
	// the default; a negative value disables the notice.
	ReadyDelay time.Duration
	// StopTimeout bounds how long Shutdown waits for children before they
	// are forcibly killed.
	StopTimeout time.Duration
	// FailTogether shuts every child down when one exits on its own.
	FailTogether bool
	// OutputBuffer sizes the console line buffer.
	OutputBuffer int
	// LossyOutput drops child lines instead of blocking when the sink falls
	// behind, reporting each gap as "dropped=N". By default a slow sink
	// applies backpressure to the children and no output is lost.
	LossyOutput bool

	Runtimes runtime.Registry
	Sink     Sink
	Events   chan<- Event
	Logger   *slog.Logger
}

func (c Config) withDefaults() Config {
	out := c
	out.Children = make([]ChildSpec, len(c.Children))
	for i, spec := range c.Children {
		out.Children[i] = spec.clone()
	}
	out.AccessPoints = append([]AccessPoint(nil), c.AccessPoints...)
	out.Runtimes = c.Runtimes.Clone()
	if out.AppName == "" {
		out.AppName = "WorkiT"
	}
	if out.ReadyDelay == 0 {
		out.ReadyDelay = defaultReadyDelay
	}
	if out.StopTimeout <= 0 {
		out.StopTimeout = defaultStopTimeout
	}
	if out.OutputBuffer <= 0 {
		out.OutputBuffer = defaultOutputBuffer
	}
	if out.Sink == nil {
		out.Sink = console.New(nil, nil)
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.DiscardHandler)
	}
	return out
}

func (s ChildSpec) clone() ChildSpec {
	out := s
	out.Command = append([]string(nil), s.Command...)
	out.Ports = append([]string(nil), s.Ports...)
	out.Requires = append([]string(nil), s.Requires...)
	if len(s.Env) > 0 {
		out.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			out.Env[k] = v
		}
	}
	if out.Title == "" {
		out.Title = out.Label
	}
	if out.ErrorColor == "" {
		out.ErrorColor = console.ColorRed
	}
	return out
}

func (s ChildSpec) stdoutTag() console.Tag {
	return console.Tag{Name: s.Label, Color: s.Color}
}

func (s ChildSpec) stderrTag() console.Tag {
	return console.Tag{Name: s.Label + " Error", Color: s.ErrorColor}
}

func buildStartSpec(spec ChildSpec) runtime.Spec {
	return runtime.Spec{
		Name:    spec.Label,
		Command: append([]string(nil), spec.Command...),
		Dir:     spec.Dir,
		Env:     spec.Env,
		Mode:    runtime.StreamPipe,
		Image:   spec.Image,
		Ports:   append([]string(nil), spec.Ports...),
	}
}
