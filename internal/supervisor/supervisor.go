// Package supervisor launches a fixed set of children, multiplexes their
// output into a single labelled console, and tears them all down exactly once
// when asked to stop.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Paintersrp/workit/internal/console"
	"github.com/Paintersrp/workit/internal/logging"
	"github.com/Paintersrp/workit/internal/logmux"
	"github.com/Paintersrp/workit/internal/metrics"
	"github.com/Paintersrp/workit/internal/runtime"
)

// Supervisor owns the children of one launch.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger

	state   stateMachine
	started atomic.Bool

	mu       sync.Mutex
	children []*child

	mux      *logmux.Mux
	sinkDone chan struct{}
	exits    chan *child

	shuttingDown chan struct{}
	stopped      chan struct{}
}

type child struct {
	spec   ChildSpec
	handle runtime.Handle
	drains sync.WaitGroup
	// delivered holds one channel per stream, closed once the mux has
	// handed every line of that stream to the sink.
	delivered []<-chan struct{}

	terminations atomic.Int32
}

// ChildStatus is a point-in-time view of one child.
type ChildStatus struct {
	Label    string        `json:"label"`
	PID      int           `json:"pid"`
	State    runtime.State `json:"state"`
	ExitCode *int          `json:"exit_code,omitempty"`
	Killed   bool          `json:"killed,omitempty"`
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	State        string        `json:"state"`
	Children     []ChildStatus `json:"children"`
	AccessPoints []AccessPoint `json:"access_points,omitempty"`
}

// New constructs a supervisor. The configuration is copied; later changes to
// cfg have no effect.
func New(cfg Config) *Supervisor {
	cfg = cfg.withDefaults()
	return &Supervisor{
		cfg:          cfg,
		logger:       cfg.Logger.With("component", "supervisor"),
		sinkDone:     make(chan struct{}),
		exits:        make(chan *child, len(cfg.Children)),
		shuttingDown: make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return s.state.load()
}

// Done is closed once the supervisor reaches StateStopped.
func (s *Supervisor) Done() <-chan struct{} {
	return s.stopped
}

// Start verifies every launch target and spawns all children. When a target
// is missing a *MissingTargetError is returned and nothing is spawned. When a
// child fails to spawn, the children already started are terminated and the
// *runtime.SpawnError is returned. Start returns once every child is spawned;
// it does not wait for them to exit.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	runtimes := make([]runtime.Runtime, len(s.cfg.Children))
	for i, spec := range s.cfg.Children {
		for _, target := range spec.Requires {
			if _, err := os.Stat(target); err != nil {
				s.logger.Debug("launch target missing", "child", spec.Label, "path", target, "err", err)
				return &MissingTargetError{Label: spec.Label, Path: target}
			}
		}
		rt, err := s.cfg.Runtimes.Lookup(spec.Runtime)
		if err != nil {
			return fmt.Errorf("child %s: %w", spec.Label, err)
		}
		runtimes[i] = rt
	}

	var muxOpts []logmux.Option
	if s.cfg.LossyOutput {
		muxOpts = append(muxOpts, logmux.Lossy())
	}
	s.mux = logmux.New(s.cfg.OutputBuffer, muxOpts...)
	go s.forwardOutput()

	for i, spec := range s.cfg.Children {
		s.cfg.Sink.Notice(console.Notice{Kind: console.NoticeInfo, Text: fmt.Sprintf("Starting %s...", spec.Title)})
		sendEvent(s.cfg.Events, Event{Child: spec.Label, Type: EventTypeStarting})
		s.logger.Debug("spawning child",
			"child", spec.Label,
			"command", logging.RedactSecrets(strings.Join(spec.Command, " ")),
			"dir", spec.Dir,
			"env", logging.RedactEnv(spec.Env),
		)

		handle, err := runtimes[i].Start(ctx, buildStartSpec(spec))
		if err != nil {
			var spawnErr *runtime.SpawnError
			if !errors.As(err, &spawnErr) {
				err = &runtime.SpawnError{Name: spec.Label, Command: spec.Command, Err: err}
			}
			s.logger.Error("spawn failed", "child", spec.Label, "err", err)
			sendEvent(s.cfg.Events, Event{Child: spec.Label, Type: EventTypeFailed, Err: err})
			s.abort()
			return err
		}

		c := &child{spec: spec, handle: handle}
		s.attach(c)
		s.mu.Lock()
		s.children = append(s.children, c)
		s.mu.Unlock()

		metrics.SetChildRunning(spec.Label, true)
		s.logger.Info("child started", "child", spec.Label, "pid", handle.PID())
		sendEvent(s.cfg.Events, Event{Child: spec.Label, Type: EventTypeRunning, PID: handle.PID()})
	}

	s.state.transition(StateNotStarted, StateRunning)

	for _, c := range s.snapshot() {
		go s.watch(c)
	}
	go s.control()
	go s.announceReady()
	return nil
}

// Shutdown terminates every child and waits for the supervisor to stop.
// Concurrent and repeated calls are safe: exactly one caller performs the
// sequence and all callers return once it has completed, or when ctx ends.
// Calling Shutdown before a successful Start returns ErrNotRunning.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if !s.state.transition(StateRunning, StateShuttingDown) {
		switch s.State() {
		case StateNotStarted:
			return ErrNotRunning
		case StateStopped:
			return nil
		}
		select {
		case <-s.stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	close(s.shuttingDown)
	metrics.IncShutdowns()
	s.logger.Info("shutting down", "children", len(s.snapshot()))
	s.cfg.Sink.Notice(console.Notice{Kind: console.NoticeWarning, Text: "Shutting down servers...", Leading: true})
	sendEvent(s.cfg.Events, Event{Type: EventTypeShuttingDown})

	if err := s.terminateAll(); err != nil {
		s.logger.Warn("children did not stop cleanly", "err", err)
	}
	s.finish()

	s.state.transition(StateShuttingDown, StateStopped)
	sendEvent(s.cfg.Events, Event{Type: EventTypeStopped})
	close(s.stopped)
	return nil
}

// WatchSignals triggers Shutdown for every signal received on sigs. Signals
// are coalesced by the state machine, so a burst results in a single
// shutdown sequence. WatchSignals returns immediately.
func (s *Supervisor) WatchSignals(sigs <-chan os.Signal) {
	go func() {
		for {
			select {
			case sig, ok := <-sigs:
				if !ok {
					return
				}
				s.logger.Info("signal received", "signal", sig.String())
				sendEvent(s.cfg.Events, Event{Type: EventTypeSignal, Message: sig.String()})
				go s.Shutdown(context.Background())
			case <-s.stopped:
				return
			}
		}
	}()
}

// Status reports the supervisor state and every spawned child.
func (s *Supervisor) Status() Status {
	st := Status{
		State:        s.State().String(),
		AccessPoints: append([]AccessPoint(nil), s.cfg.AccessPoints...),
	}
	for _, c := range s.snapshot() {
		cs := ChildStatus{
			Label: c.spec.Label,
			PID:   c.handle.PID(),
			State: c.handle.State(),
		}
		select {
		case <-c.handle.Done():
			exit := c.handle.Exit()
			code := exit.Code
			cs.ExitCode = &code
			cs.Killed = exit.Killed
		default:
		}
		st.Children = append(st.Children, cs)
	}
	return st
}

func (s *Supervisor) snapshot() []*child {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*child(nil), s.children...)
}

// attach starts one drain goroutine per output stream of c.
func (s *Supervisor) attach(c *child) {
	streams := []struct {
		reader io.Reader
		stream console.Stream
		tag    console.Tag
	}{
		{c.handle.Stdout(), console.StreamStdout, c.spec.stdoutTag()},
		{c.handle.Stderr(), console.StreamStderr, c.spec.stderrTag()},
	}
	for _, st := range streams {
		if st.reader == nil {
			continue
		}
		lines := make(chan console.Line, 64)
		c.delivered = append(c.delivered, s.mux.Add(lines))
		c.drains.Add(1)
		go func(r io.Reader, stream console.Stream, tag console.Tag) {
			defer c.drains.Done()
			defer close(lines)
			w := console.NewLineWriter(c.spec.Label, stream, tag, func(line console.Line) {
				lines <- line
			})
			if _, err := io.Copy(w, r); err != nil {
				s.logger.Debug("output stream closed", "child", c.spec.Label, "stream", string(stream), "err", err)
			}
			_ = w.Close()
		}(st.reader, st.stream, st.tag)
	}
}

func (s *Supervisor) forwardOutput() {
	defer close(s.sinkDone)
	for line := range s.mux.Output() {
		metrics.IncOutputLines(line.Source, string(line.Stream))
		s.cfg.Sink.Line(line)
	}
}

// watch waits for c to exit and posts it to the control loop. The exit is
// posted only after the child's output has reached the mux output, so the
// exit report follows the child's last line.
func (s *Supervisor) watch(c *child) {
	<-c.handle.Done()
	if waitGroupTimeout(&c.drains, drainTimeout) {
		for _, delivered := range c.delivered {
			<-delivered
		}
	} else {
		s.logger.Warn("output drain timed out", "child", c.spec.Label)
	}

	exit := c.handle.Exit()
	metrics.SetChildRunning(c.spec.Label, false)
	metrics.RecordChildExit(c.spec.Label, exitOutcome(exit))

	evt := Event{Child: c.spec.Label, Type: EventTypeExited, PID: c.handle.PID(), Code: exit.Code, Err: exit.Err}
	if exit.Killed {
		evt.Type = EventTypeKilled
	}
	sendEvent(s.cfg.Events, evt)

	s.exits <- c
}

// control is the single goroutine deciding what an unexpected exit means.
func (s *Supervisor) control() {
	live := len(s.snapshot())
	for live > 0 {
		select {
		case c := <-s.exits:
			live--
			if s.State() != StateRunning {
				continue
			}
			exit := c.handle.Exit()
			s.reportExit(c, exit)
			if live == 0 {
				s.logger.Info("all children exited")
				go s.Shutdown(context.Background())
				return
			}
			if s.cfg.FailTogether && !exit.Success() {
				s.logger.Warn("child failed, stopping siblings", "child", c.spec.Label)
				go s.Shutdown(context.Background())
			}
		case <-s.stopped:
			return
		}
	}
}

func (s *Supervisor) reportExit(c *child, exit runtime.ExitStatus) {
	if exit.Success() {
		s.logger.Info("child exited", "child", c.spec.Label)
		s.emitSystemLine(c.spec.stdoutTag(), console.StreamStdout, c.spec.Label, "exited")
		return
	}
	err := &ChildExitError{Label: c.spec.Label, Code: exit.Code, Killed: exit.Killed}
	s.logger.Warn("child exited unexpectedly", "child", c.spec.Label, "err", err)
	s.emitSystemLine(c.spec.stderrTag(), console.StreamStderr, c.spec.Label, exit.String())
}

func (s *Supervisor) emitSystemLine(tag console.Tag, stream console.Stream, source, text string) {
	line := console.Line{
		Timestamp: time.Now(),
		Source:    source,
		Stream:    stream,
		Tag:       tag,
		Text:      text,
	}
	if !s.mux.Emit(line) {
		s.cfg.Sink.Line(line)
	}
}

func (s *Supervisor) announceReady() {
	if s.cfg.ReadyDelay < 0 {
		return
	}
	timer := time.NewTimer(s.cfg.ReadyDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.shuttingDown:
		return
	}
	if s.State() != StateRunning {
		return
	}

	sendEvent(s.cfg.Events, Event{Type: EventTypeReady})
	sink := s.cfg.Sink
	sink.Notice(console.Notice{Kind: console.NoticeSuccess, Text: fmt.Sprintf("✅ %s is running!", s.cfg.AppName), Leading: true})
	for _, ap := range s.cfg.AccessPoints {
		sink.Notice(console.Notice{Kind: console.NoticeAccess, Label: ap.Name, Text: ap.URL})
	}
	sink.Notice(console.Notice{Kind: console.NoticeMuted, Text: "Press Ctrl+C to stop all servers", Leading: true})
}

// terminateAll stops every child concurrently within StopTimeout. A child
// still alive when the timeout expires is killed by its runtime.
func (s *Supervisor) terminateAll() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
	defer cancel()

	var g errgroup.Group
	for _, c := range s.snapshot() {
		g.Go(func() error {
			if c.terminations.Add(1) > 1 {
				return nil
			}
			if err := c.handle.Terminate(ctx); err != nil {
				return fmt.Errorf("terminate %s: %w", c.spec.Label, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// abort unwinds a partially successful Start.
func (s *Supervisor) abort() {
	if err := s.terminateAll(); err != nil {
		s.logger.Warn("cleanup after failed start", "err", err)
	}
	for _, c := range s.snapshot() {
		metrics.SetChildRunning(c.spec.Label, false)
	}
	s.finish()
}

// finish waits for output to drain and the sink to flush. Streams of a child
// that refuses to die are abandoned after drainTimeout.
func (s *Supervisor) finish() {
	for _, c := range s.snapshot() {
		if !waitGroupTimeout(&c.drains, drainTimeout) {
			s.logger.Warn("output drain timed out", "child", c.spec.Label)
			return
		}
	}
	s.mux.Close()
	select {
	case <-s.sinkDone:
	case <-time.After(drainTimeout):
		s.logger.Warn("console flush timed out")
	}
}

func waitGroupTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

func exitOutcome(exit runtime.ExitStatus) string {
	switch {
	case exit.Killed:
		return "killed"
	case exit.Success():
		return "exited"
	default:
		return "failed"
	}
}
