package cli

import (
	"bytes"
	stdcontext "context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Paintersrp/workit/internal/launch"
	"github.com/Paintersrp/workit/internal/runtime"
	"github.com/Paintersrp/workit/internal/supervisor"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root, _ := newRootCommand()
	var out, errOut syncBuffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(stdcontext.Background())
	return out.String(), errOut.String(), err
}

func TestRootCommandDefaultsFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WORKIT_DIR", dir)
	t.Setenv("WORKIT_READY_DELAY", "-1s")
	t.Setenv("WORKIT_STOP_TIMEOUT", "750ms")
	t.Setenv("WORKIT_FAIL_TOGETHER", "true")
	t.Setenv("WORKIT_LOG_LEVEL", "debug")
	t.Setenv("WORKIT_LOG_FORMAT", "json")
	t.Setenv("WORKIT_VARIANT", "Full")
	t.Setenv("NO_COLOR", "1")

	_, ctx := newRootCommand()
	if ctx.dir != dir {
		t.Fatalf("expected dir %s, got %s", dir, ctx.dir)
	}
	if ctx.defaults.ReadyDelay != -time.Second {
		t.Fatalf("expected ready delay -1s, got %s", ctx.defaults.ReadyDelay)
	}
	if ctx.defaults.StopTimeout != 750*time.Millisecond {
		t.Fatalf("expected stop timeout 750ms, got %s", ctx.defaults.StopTimeout)
	}
	if !ctx.defaults.FailTogether {
		t.Fatal("expected fail-together enabled")
	}
	if ctx.logLevel != "debug" || ctx.logFormat != "json" {
		t.Fatalf("unexpected log config %q/%q", ctx.logLevel, ctx.logFormat)
	}
	if ctx.defaults.Variant == nil || *ctx.defaults.Variant != launch.VariantFull {
		t.Fatalf("expected full variant from env, got %v", ctx.defaults.Variant)
	}
	if !ctx.noColor || len(ctx.consoleOptions()) != 1 {
		t.Fatal("expected NO_COLOR to force the plain colour profile")
	}
}

func TestRootCommandNoColorFlag(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("WORKIT_NO_COLOR", "")

	root, ctx := newRootCommand()
	if ctx.noColor || len(ctx.consoleOptions()) != 0 {
		t.Fatal("expected colour enabled by default")
	}
	if err := root.PersistentFlags().Parse([]string{"--no-color"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if !ctx.noColor || len(ctx.consoleOptions()) != 1 {
		t.Fatal("expected --no-color to force the plain colour profile")
	}
}

func TestRootCommandIgnoresInvalidEnv(t *testing.T) {
	t.Setenv("WORKIT_READY_DELAY", "soon")
	t.Setenv("WORKIT_STOP_TIMEOUT", "-5s")
	t.Setenv("WORKIT_FAIL_TOGETHER", "maybe")
	t.Setenv("WORKIT_VARIANT", "huge")
	t.Setenv("WORKIT_NO_COLOR", "perhaps")
	t.Setenv("NO_COLOR", "")

	_, ctx := newRootCommand()
	if ctx.defaults.ReadyDelay != defaultReadyDelay {
		t.Fatalf("expected default ready delay, got %s", ctx.defaults.ReadyDelay)
	}
	if ctx.defaults.StopTimeout != defaultStopTimeout {
		t.Fatalf("expected default stop timeout, got %s", ctx.defaults.StopTimeout)
	}
	if ctx.defaults.FailTogether {
		t.Fatal("expected fail-together disabled")
	}
	if ctx.logLevel != "warn" {
		t.Fatalf("expected warn log level, got %q", ctx.logLevel)
	}
	if ctx.defaults.Variant != nil {
		t.Fatalf("expected unknown variant to be ignored, got %s", *ctx.defaults.Variant)
	}
	if ctx.noColor {
		t.Fatal("expected colour enabled")
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"run", "install", "status", "stop"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %s subcommand, got %v (err %v)", name, cmd, err)
		}
	}
}

func TestFormatError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "missing target",
			err:  &supervisor.MissingTargetError{Label: "API", Path: "/app/server/server.js"},
			want: "Error: Server file not found: /app/server/server.js",
		},
		{
			name: "wrapped missing target",
			err:  fmt.Errorf("start: %w", &supervisor.MissingTargetError{Label: "API", Path: "/x"}),
			want: "Error: Server file not found: /x",
		},
		{
			name: "spawn error",
			err:  &runtime.SpawnError{Name: "API", Command: []string{"bun", "dev"}, Err: errors.New("boom")},
			want: "Error: start API (bun dev): boom",
		},
		{
			name: "plain",
			err:  errors.New("nope"),
			want: "Error: nope",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatError(tt.err); got != tt.want {
				t.Fatalf("formatError() = %q, want %q", got, tt.want)
			}
		})
	}
}
