package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/Paintersrp/workit/internal/runtime"
)

const (
	defaultGracePeriod = 3 * time.Second
	defaultWaitDelay   = 2 * time.Second
)

// Option configures the process runtime.
type Option func(*runtimeImpl)

// WithGracePeriod sets how long Terminate waits after the polite signal before
// the child is killed.
func WithGracePeriod(d time.Duration) Option {
	return func(r *runtimeImpl) {
		if d > 0 {
			r.grace = d
		}
	}
}

// WithLogger routes diagnostic messages to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *runtimeImpl) {
		if logger != nil {
			r.logger = logger
		}
	}
}

type runtimeImpl struct {
	grace  time.Duration
	logger *slog.Logger
}

// New constructs a runtime that executes children as local processes.
func New(opts ...Option) runtime.Runtime {
	r := &runtimeImpl{grace: defaultGracePeriod, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *runtimeImpl) Start(ctx context.Context, spec runtime.Spec) (runtime.Handle, error) {
	if len(spec.Command) == 0 {
		return nil, &runtime.SpawnError{Name: spec.Name, Err: errors.New("command is required")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &runtime.SpawnError{Name: spec.Name, Command: spec.Command, Err: err}
	}
	if spec.Dir != "" {
		info, err := os.Stat(spec.Dir)
		if err != nil {
			return nil, &runtime.SpawnError{Name: spec.Name, Command: spec.Command, Err: fmt.Errorf("working directory: %w", err)}
		}
		if !info.IsDir() {
			return nil, &runtime.SpawnError{Name: spec.Name, Command: spec.Command, Err: fmt.Errorf("working directory %s is not a directory", spec.Dir)}
		}
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir

	env := os.Environ()
	if len(spec.Env) > 0 {
		keys := make([]string, 0, len(spec.Env))
		for k := range spec.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, fmt.Sprintf("%s=%s", k, spec.Env[k]))
		}
	}
	cmd.Env = env

	inst := &processInstance{
		name:   spec.Name,
		cmd:    cmd,
		grace:  r.grace,
		logger: r.logger.With("child", spec.Name),
		state:  runtime.StateStarting,
		done:   make(chan struct{}),
	}

	switch spec.Mode {
	case runtime.StreamInherit:
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	default:
		stdoutR, stdoutW := io.Pipe()
		stderrR, stderrW := io.Pipe()
		cmd.Stdout = stdoutW
		cmd.Stderr = stderrW
		cmd.WaitDelay = defaultWaitDelay
		inst.stdout, inst.stdoutW = stdoutR, stdoutW
		inst.stderr, inst.stderrW = stderrR, stderrW
		configureCmdSysProcAttr(cmd)
	}

	if err := cmd.Start(); err != nil {
		inst.closeWriters()
		return nil, &runtime.SpawnError{Name: spec.Name, Command: spec.Command, Err: err}
	}

	inst.setState(runtime.StateRunning)
	inst.logger.Debug("process started", "pid", cmd.Process.Pid, "command", spec.Command)

	go inst.wait()

	return inst, nil
}

type processInstance struct {
	name   string
	cmd    *exec.Cmd
	grace  time.Duration
	logger *slog.Logger

	stdout  io.Reader
	stderr  io.Reader
	stdoutW *io.PipeWriter
	stderrW *io.PipeWriter

	mu    sync.RWMutex
	state runtime.State
	exit  runtime.ExitStatus

	done chan struct{}

	terminateOnce sync.Once
	terminateErr  error
}

func (p *processInstance) Name() string { return p.name }

func (p *processInstance) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *processInstance) Stdout() io.Reader { return p.stdout }

func (p *processInstance) Stderr() io.Reader { return p.stderr }

func (p *processInstance) Done() <-chan struct{} { return p.done }

func (p *processInstance) Exit() runtime.ExitStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exit
}

func (p *processInstance) State() runtime.State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *processInstance) Terminate(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	p.terminateOnce.Do(func() {
		p.terminateErr = p.terminate(ctx, false)
	})
	return p.terminateErr
}

func (p *processInstance) setState(state runtime.State) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

func (p *processInstance) wait() {
	err := p.cmd.Wait()
	p.closeWriters()

	status := runtime.ExitStatus{Code: -1}
	if ps := p.cmd.ProcessState; ps != nil {
		status.Code = ps.ExitCode()
		status.Killed = status.Code == -1
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
		status.Err = err
	}

	state := runtime.StateExited
	if status.Killed {
		state = runtime.StateKilled
	}

	p.mu.Lock()
	p.exit = status
	p.state = state
	p.mu.Unlock()

	p.logger.Debug("process exited", "status", status.String())
	close(p.done)
}

func (p *processInstance) closeWriters() {
	if p.stdoutW != nil {
		_ = p.stdoutW.Close()
	}
	if p.stderrW != nil {
		_ = p.stderrW.Close()
	}
}
