package runtime

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// StreamMode selects how a child's standard streams are wired.
type StreamMode int

const (
	// StreamPipe exposes stdout and stderr as readers on the handle.
	StreamPipe StreamMode = iota
	// StreamInherit connects the child directly to the parent's stdio.
	StreamInherit
)

// State is the lifecycle state of a single child.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateExited   State = "exited"
	StateKilled   State = "killed"
)

// Spec describes a child to launch.
type Spec struct {
	Name    string
	Command []string
	Dir     string
	Env     map[string]string
	Mode    StreamMode

	// Container runtimes only.
	Image string
	Ports []string
}

// ExitStatus is delivered once a child has terminated. Killed is set when the
// child was ended by a signal rather than exiting on its own; Code is -1 then.
type ExitStatus struct {
	Code   int
	Killed bool
	Err    error
}

// Success reports whether the child exited normally with status zero.
func (e ExitStatus) Success() bool {
	return !e.Killed && e.Code == 0 && e.Err == nil
}

func (e ExitStatus) String() string {
	if e.Killed {
		return "killed by signal"
	}
	return fmt.Sprintf("exited with code %d", e.Code)
}

// Handle represents a single running child managed by a runtime adapter.
type Handle interface {
	// Name returns the label the handle was started with.
	Name() string

	// PID returns the operating system process id, or 0 when not applicable.
	PID() int

	// Stdout and Stderr return the child's output streams. Both are nil when
	// the handle was started with StreamInherit. Each reader reaches EOF once
	// the child has exited and its output has been consumed.
	Stdout() io.Reader
	Stderr() io.Reader

	// Done is closed exactly once when the child has terminated.
	Done() <-chan struct{}

	// Exit returns the termination status. It is only meaningful after Done
	// has been closed.
	Exit() ExitStatus

	// State reports the current lifecycle state.
	State() State

	// Terminate asks the child to stop, escalating to a forced kill when
	// the grace period expires. Implementations must be idempotent and safe
	// to call concurrently; terminating an exited child is a no-op.
	Terminate(ctx context.Context) error
}

// Runtime describes a backend capable of launching children.
type Runtime interface {
	// Start launches the child described by spec. Failures to start are
	// reported as *SpawnError.
	Start(ctx context.Context, spec Spec) (Handle, error)
}

// Registry maps runtime identifiers to their concrete implementations.
type Registry map[string]Runtime

// Clone returns a shallow copy of the registry, allowing callers to avoid
// accidental mutation of shared maps.
func (r Registry) Clone() Registry {
	dup := make(Registry, len(r))
	for k, v := range r {
		dup[k] = v
	}
	return dup
}

// SpawnError reports that the operating system refused to start a child.
type SpawnError struct {
	Name    string
	Command []string
	Err     error
}

func (e *SpawnError) Error() string {
	cmd := strings.Join(e.Command, " ")
	if cmd == "" {
		return fmt.Sprintf("start %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("start %s (%s): %v", e.Name, cmd, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
