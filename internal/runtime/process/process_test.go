package process

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	stdruntime "runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Paintersrp/workit/internal/runtime"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if stdruntime.GOOS == "windows" {
		t.Skip("process runtime tests skipped on windows")
	}
}

func startShell(t *testing.T, rt runtime.Runtime, script string) runtime.Handle {
	t.Helper()
	handle, err := rt.Start(context.Background(), runtime.Spec{
		Name:    "test",
		Command: []string{"/bin/sh", "-c", script},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = handle.Terminate(ctx)
	})
	return handle
}

func readAll(r io.Reader) <-chan string {
	out := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(r)
		out <- string(data)
	}()
	return out
}

func waitDone(t *testing.T, h runtime.Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s to exit", h.Name())
	}
}

func TestStartStreamsStdoutAndStderr(t *testing.T) {
	skipOnWindows(t)

	h := startShell(t, New(), "echo hello; echo oops 1>&2; echo world")
	stdout := readAll(h.Stdout())
	stderr := readAll(h.Stderr())

	waitDone(t, h)

	if got := <-stdout; got != "hello\nworld\n" {
		t.Fatalf("unexpected stdout %q", got)
	}
	if got := <-stderr; got != "oops\n" {
		t.Fatalf("unexpected stderr %q", got)
	}
	exit := h.Exit()
	if !exit.Success() {
		t.Fatalf("expected clean exit, got %+v", exit)
	}
	if h.State() != runtime.StateExited {
		t.Fatalf("expected exited state, got %s", h.State())
	}
	if h.PID() == 0 {
		t.Fatal("expected non-zero pid")
	}
}

func TestStartReportsExitCode(t *testing.T) {
	skipOnWindows(t)

	h := startShell(t, New(), "exit 3")
	readAll(h.Stdout())
	readAll(h.Stderr())
	waitDone(t, h)

	exit := h.Exit()
	if exit.Code != 3 || exit.Killed {
		t.Fatalf("expected exit code 3, got %+v", exit)
	}
}

func TestStartPassesEnvAndDir(t *testing.T) {
	skipOnWindows(t)

	dir := t.TempDir()
	h, err := New().Start(context.Background(), runtime.Spec{
		Name:    "env",
		Command: []string{"/bin/sh", "-c", "echo $WORKIT_TEST_VALUE; pwd"},
		Dir:     dir,
		Env:     map[string]string{"WORKIT_TEST_VALUE": "from-spec"},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	stdout := readAll(h.Stdout())
	readAll(h.Stderr())
	waitDone(t, h)

	lines := strings.Split(strings.TrimSpace(<-stdout), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %q", lines)
	}
	if lines[0] != "from-spec" {
		t.Fatalf("expected env override, got %q", lines[0])
	}
	resolved, _ := filepath.EvalSymlinks(dir)
	if got, _ := filepath.EvalSymlinks(lines[1]); got != resolved {
		t.Fatalf("expected working directory %s, got %s", resolved, lines[1])
	}
}

func TestStartMissingExecutableIsSpawnError(t *testing.T) {
	_, err := New().Start(context.Background(), runtime.Spec{
		Name:    "ghost",
		Command: []string{"workit-definitely-not-installed"},
	})
	var spawnErr *runtime.SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
	if spawnErr.Name != "ghost" {
		t.Fatalf("expected name ghost, got %q", spawnErr.Name)
	}
}

func TestStartInvalidWorkdirIsSpawnError(t *testing.T) {
	_, err := New().Start(context.Background(), runtime.Spec{
		Name:    "api",
		Command: []string{"/bin/sh", "-c", "true"},
		Dir:     filepath.Join(t.TempDir(), "missing"),
	})
	var spawnErr *runtime.SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
}

func TestStartEmptyCommandIsSpawnError(t *testing.T) {
	_, err := New().Start(context.Background(), runtime.Spec{Name: "empty"})
	var spawnErr *runtime.SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
}

func TestTerminateKillsLongRunningChild(t *testing.T) {
	skipOnWindows(t)

	h := startShell(t, New(), "sleep 30")
	readAll(h.Stdout())
	readAll(h.Stderr())

	if h.State() != runtime.StateRunning {
		t.Fatalf("expected running state, got %s", h.State())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Terminate(ctx); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	waitDone(t, h)

	if !h.Exit().Killed {
		t.Fatalf("expected killed exit, got %+v", h.Exit())
	}
	if h.State() != runtime.StateKilled {
		t.Fatalf("expected killed state, got %s", h.State())
	}
}

func TestTerminateIsIdempotentAndConcurrent(t *testing.T) {
	skipOnWindows(t)

	h := startShell(t, New(), "sleep 30")
	readAll(h.Stdout())
	readAll(h.Stderr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.Terminate(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("terminate returned error: %v", err)
		}
	}

	if err := h.Terminate(ctx); err != nil {
		t.Fatalf("terminate after exit returned error: %v", err)
	}
}

func TestTerminateAfterExitIsNoop(t *testing.T) {
	skipOnWindows(t)

	h := startShell(t, New(), "exit 0")
	readAll(h.Stdout())
	readAll(h.Stderr())
	waitDone(t, h)

	if err := h.Terminate(context.Background()); err != nil {
		t.Fatalf("terminate on exited child: %v", err)
	}
	if h.State() != runtime.StateExited {
		t.Fatalf("expected exited state, got %s", h.State())
	}
}

func TestTerminateHonoursGracefulExit(t *testing.T) {
	skipOnWindows(t)

	h := startShell(t, New(), "trap 'exit 0' TERM; echo ready; while true; do sleep 0.05; done")
	stdout := h.Stdout()
	readAll(h.Stderr())

	buf := make([]byte, len("ready\n"))
	if _, err := io.ReadFull(stdout, buf); err != nil {
		t.Fatalf("read ready marker: %v", err)
	}
	readAll(stdout)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Terminate(ctx); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	waitDone(t, h)

	exit := h.Exit()
	if exit.Killed || exit.Code != 0 {
		t.Fatalf("expected graceful exit, got %+v", exit)
	}
}

func TestTerminateEscalatesAfterGracePeriod(t *testing.T) {
	skipOnWindows(t)

	rt := New(WithGracePeriod(100 * time.Millisecond))
	h := startShell(t, rt, "trap '' TERM; echo ready; while true; do sleep 0.05; done")
	stdout := h.Stdout()
	readAll(h.Stderr())

	buf := make([]byte, len("ready\n"))
	if _, err := io.ReadFull(stdout, buf); err != nil {
		t.Fatalf("read ready marker: %v", err)
	}
	readAll(stdout)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	started := time.Now()
	if err := h.Terminate(ctx); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if elapsed := time.Since(started); elapsed < 100*time.Millisecond {
		t.Fatalf("expected terminate to wait for the grace period, took %s", elapsed)
	}
	if !h.Exit().Killed {
		t.Fatalf("expected forced kill, got %+v", h.Exit())
	}
}
