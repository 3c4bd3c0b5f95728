// Package docker runs children as Docker containers. It is used for the
// optional MongoDB container of the full variant.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/Paintersrp/workit/internal/runtime"
	"github.com/Paintersrp/workit/internal/runtime/containerutil"
)

const (
	defaultStopGrace = 3 * time.Second
	logDrainTimeout  = 2 * time.Second
)

// Option configures the runtime.
type Option func(*runtimeImpl)

// WithStopGrace sets how long a container may take to stop before Docker
// kills it.
func WithStopGrace(d time.Duration) Option {
	return func(r *runtimeImpl) {
		if d > 0 {
			r.grace = d
		}
	}
}

// WithLogger sets the diagnostic logger.
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

	client     *client.Client
	clientOnce sync.Once
	clientErr  error
}

// New returns a Docker backed runtime implementation. The Docker client is
// created lazily on the first Start.
func New(opts ...Option) runtime.Runtime {
	r := &runtimeImpl{grace: defaultStopGrace, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *runtimeImpl) getClient() (*client.Client, error) {
	r.clientOnce.Do(func() {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			r.clientErr = err
			return
		}
		r.client = cli
	})
	return r.client, r.clientErr
}

func (r *runtimeImpl) Start(ctx context.Context, spec runtime.Spec) (runtime.Handle, error) {
	spawnErr := func(err error) error {
		return &runtime.SpawnError{Name: spec.Name, Command: []string{"docker", "run", spec.Image}, Err: err}
	}

	containerCfg, hostCfg, err := buildConfigs(spec)
	if err != nil {
		return nil, spawnErr(err)
	}

	cli, err := r.getClient()
	if err != nil {
		return nil, spawnErr(fmt.Errorf("create docker client: %w", err))
	}

	if err := ensureImage(ctx, cli, spec.Image); err != nil {
		return nil, spawnErr(err)
	}

	createResp, err := cli.ContainerCreate(ctx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return nil, spawnErr(fmt.Errorf("container create: %w", err))
	}
	id := createResp.ID

	statusCh, errCh := cli.ContainerWait(context.Background(), id, container.WaitConditionNextExit)

	if err := cli.ContainerStart(ctx, id, types.ContainerStartOptions{}); err != nil {
		_ = cli.ContainerRemove(context.Background(), id, types.ContainerRemoveOptions{Force: true})
		return nil, spawnErr(fmt.Errorf("container start: %w", err))
	}

	h := newContainerHandle(cli, id, spec.Name, r.grace, r.logger.With("child", spec.Name, "container", shortID(id)))
	if info, err := cli.ContainerInspect(ctx, id); err == nil && info.State != nil {
		h.pid = info.State.Pid
	}
	h.logger.Debug("container started", "image", spec.Image)

	go h.streamLogs()
	go h.wait(statusCh, errCh)

	return h, nil
}

type containerHandle struct {
	cli    *client.Client
	id     string
	name   string
	pid    int
	grace  time.Duration
	logger *slog.Logger

	stdout  *io.PipeReader
	stderr  *io.PipeReader
	stdoutW *io.PipeWriter
	stderrW *io.PipeWriter

	logCtx  context.Context
	logStop context.CancelFunc
	logDone chan struct{}

	mu      sync.RWMutex
	state   runtime.State
	exit    runtime.ExitStatus
	stopped bool

	done chan struct{}

	terminateOnce sync.Once
	terminateErr  error
}

func newContainerHandle(cli *client.Client, id, name string, grace time.Duration, logger *slog.Logger) *containerHandle {
	logCtx, logStop := context.WithCancel(context.Background())
	h := &containerHandle{
		cli:     cli,
		id:      id,
		name:    name,
		grace:   grace,
		logger:  logger,
		logCtx:  logCtx,
		logStop: logStop,
		logDone: make(chan struct{}),
		state:   runtime.StateRunning,
		done:    make(chan struct{}),
	}
	h.stdout, h.stdoutW = io.Pipe()
	h.stderr, h.stderrW = io.Pipe()
	return h
}

func (h *containerHandle) Name() string          { return h.name }
func (h *containerHandle) PID() int              { return h.pid }
func (h *containerHandle) Stdout() io.Reader     { return h.stdout }
func (h *containerHandle) Stderr() io.Reader     { return h.stderr }
func (h *containerHandle) Done() <-chan struct{} { return h.done }

func (h *containerHandle) Exit() runtime.ExitStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.exit
}

func (h *containerHandle) State() runtime.State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *containerHandle) streamLogs() {
	defer close(h.logDone)
	reader, err := h.cli.ContainerLogs(h.logCtx, h.id, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Tail:       "all",
	})
	if err != nil {
		h.logger.Debug("container logs unavailable", "err", err)
		return
	}
	defer reader.Close()
	if _, err := stdcopy.StdCopy(h.stdoutW, h.stderrW, reader); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("container log stream ended", "err", err)
	}
}

func (h *containerHandle) wait(statusCh <-chan container.WaitResponse, errCh <-chan error) {
	var status containerutil.WaitStatus
	select {
	case err := <-errCh:
		status.Err = err
	case resp := <-statusCh:
		status.ExitCode = resp.StatusCode
		if resp.Error != nil {
			status.ErrorMessage = resp.Error.Message
		}
	}

	if info, err := h.cli.ContainerInspect(context.Background(), h.id); err == nil && info.State != nil {
		status.OOMKilled = info.State.OOMKilled
	}

	select {
	case <-h.logDone:
	case <-time.After(logDrainTimeout):
	}
	h.logStop()
	_ = h.stdoutW.Close()
	_ = h.stderrW.Close()
	<-h.logDone

	if err := h.cli.ContainerRemove(context.Background(), h.id, types.ContainerRemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		h.logger.Debug("container remove failed", "err", err)
	}

	h.mu.Lock()
	status.Stopped = h.stopped
	h.exit = containerutil.ExitStatus(status)
	h.state = runtime.StateExited
	if h.exit.Killed {
		h.state = runtime.StateKilled
	}
	h.mu.Unlock()

	h.logger.Debug("container exited", "status", h.exit.String())
	close(h.done)
}

// Terminate stops the container, letting Docker escalate to SIGKILL after
// the grace period, and waits for it to exit or ctx to end.
func (h *containerHandle) Terminate(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	h.terminateOnce.Do(func() {
		h.terminateErr = h.terminate(ctx)
	})
	return h.terminateErr
}

func (h *containerHandle) terminate(ctx context.Context) error {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()

	grace := h.grace
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < grace {
			grace = remaining
		}
	}
	sec := int(grace.Seconds())
	err := h.cli.ContainerStop(ctx, h.id, container.StopOptions{Timeout: &sec})
	if err != nil && !client.IsErrNotFound(err) {
		killErr := h.cli.ContainerKill(context.Background(), h.id, "SIGKILL")
		if killErr != nil && !client.IsErrNotFound(killErr) {
			return fmt.Errorf("container stop: %v; kill: %w", err, killErr)
		}
	}

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ensureImage(ctx context.Context, cli *client.Client, imageName string) error {
	_, _, err := cli.ImageInspectWithRaw(ctx, imageName)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("inspect image: %w", err)
	}
	reader, err := cli.ImagePull(ctx, imageName, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("pull image: %w", err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

func buildConfigs(spec runtime.Spec) (*container.Config, *container.HostConfig, error) {
	common, err := containerutil.PrepareCommonSpec(spec)
	if err != nil {
		return nil, nil, err
	}

	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, mapping := range common.Ports {
		exposed[mapping.Port] = struct{}{}
		bindings[mapping.Port] = append(bindings[mapping.Port], mapping.Bindings...)
	}

	config := &container.Config{
		Image:        common.Image,
		Env:          common.Env,
		Cmd:          strslice.StrSlice(common.Cmd),
		WorkingDir:   common.Workdir,
		ExposedPorts: exposed,
		Labels:       map[string]string{"workit.child": spec.Name},
	}
	host := &container.HostConfig{PortBindings: bindings}
	return config, host, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
