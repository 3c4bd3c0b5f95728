package cli

import (
	stdcontext "context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apihttp "github.com/Paintersrp/workit/internal/api/http"
	"github.com/Paintersrp/workit/internal/launch"
	"github.com/Paintersrp/workit/internal/runtime"
	"github.com/Paintersrp/workit/internal/supervisor"
)

func startFakeInstance(t *testing.T, fake *fakeSupervisor) string {
	t.Helper()
	control := newControlAPI(fake, launch.VariantFull)
	control.reachable = func(_ stdcontext.Context, url string) bool {
		return strings.Contains(url, "5173")
	}
	server, err := apihttp.NewServer(apihttp.Config{Controller: control})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return strings.TrimPrefix(ts.URL, "http://")
}

func TestStatusCommandPrintsChildren(t *testing.T) {
	code := 0
	fake := &fakeSupervisor{
		state: supervisor.StateRunning,
		status: supervisor.Status{
			State: "running",
			Children: []supervisor.ChildStatus{
				{Label: "API", PID: 4242, State: runtime.StateRunning},
				{Label: "Frontend", PID: 4343, State: runtime.StateExited, ExitCode: &code},
				{Label: "MongoDB", State: runtime.StateKilled, Killed: true},
			},
			AccessPoints: []supervisor.AccessPoint{
				{Name: "API", URL: "http://localhost:5001/api"},
				{Name: "Frontend", URL: "http://localhost:5173"},
			},
		},
	}
	addr := startFakeInstance(t, fake)

	out, _, err := executeRoot(t, "status", "--addr", addr)
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "State: running (full server)" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	for _, want := range []string{
		"CHILD",
		"API       4242  running  -",
		"Frontend  4343  exited   0",
		"MongoDB   -     killed   signal",
		"API: http://localhost:5001/api (down)",
		"Frontend: http://localhost:5173 (up)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestStatusCommandUnreachable(t *testing.T) {
	ts := httptest.NewServer(nil)
	addr := strings.TrimPrefix(ts.URL, "http://")
	ts.Close()

	_, _, err := executeRoot(t, "status", "--addr", addr)
	if err == nil || !strings.Contains(err.Error(), "contact workit") {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestStopCommandRequestsShutdown(t *testing.T) {
	fake := &fakeSupervisor{state: supervisor.StateRunning, shutdown: make(chan struct{})}
	addr := startFakeInstance(t, fake)

	out, _, err := executeRoot(t, "stop", "--addr", addr)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !strings.Contains(out, "Shutdown requested (shutting_down)") {
		t.Fatalf("unexpected output %q", out)
	}
	select {
	case <-fake.shutdown:
	case <-time.After(time.Second):
		t.Fatal("expected shutdown to reach the supervisor")
	}
}

func TestStopCommandWhenNotRunning(t *testing.T) {
	fake := &fakeSupervisor{state: supervisor.StateStopped}
	addr := startFakeInstance(t, fake)

	_, _, err := executeRoot(t, "stop", "--addr", addr)
	if err == nil || !strings.Contains(err.Error(), "not running") {
		t.Fatalf("expected not running error, got %v", err)
	}
}
