package metrics_test

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Paintersrp/workit/internal/metrics"
)

func scrape(t *testing.T) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status code from metrics handler: %d", rec.Code)
	}
	return rec.Body.String()
}

func TestRegistryExposesMetrics(t *testing.T) {
	child := "metrics_test_child"

	metrics.EmitBuildInfo()
	metrics.SetChildRunning(child, true)
	metrics.RecordChildExit(child, "failed")
	metrics.RecordChildExit(child, "failed")
	metrics.IncOutputLines(child, "stdout")

	body := scrape(t)

	runningLine := fmt.Sprintf("workit_child_running{child=\"%s\"} 1", child)
	if !strings.Contains(body, runningLine) {
		t.Fatalf("expected running metric line %q in body:\n%s", runningLine, body)
	}

	exitsLine := fmt.Sprintf("workit_child_exits_total{child=\"%s\",outcome=\"failed\"} 2", child)
	if !strings.Contains(body, exitsLine) {
		t.Fatalf("expected exit metric line %q in body:\n%s", exitsLine, body)
	}

	linesLine := fmt.Sprintf("workit_output_lines_total{child=\"%s\",stream=\"stdout\"} 1", child)
	if !strings.Contains(body, linesLine) {
		t.Fatalf("expected output metric line %q in body:\n%s", linesLine, body)
	}

	if !strings.Contains(body, "workit_build_info{") {
		t.Fatalf("expected build info metric in body:\n%s", body)
	}
	if !strings.Contains(body, "go_version=") {
		t.Fatalf("expected go_version label on build info metric:\n%s", body)
	}
}

func TestResetChildRemovesSeries(t *testing.T) {
	child := "metrics_reset_child"

	metrics.SetChildRunning(child, true)
	metrics.RecordChildExit(child, "killed")
	metrics.ResetChild(child)

	body := scrape(t)
	if strings.Contains(body, child) {
		t.Fatalf("expected series for %s to be removed:\n%s", child, body)
	}
}

func TestEmptyChildIgnored(t *testing.T) {
	metrics.SetChildRunning("", true)
	metrics.RecordChildExit("", "exited")

	body := scrape(t)
	if strings.Contains(body, `child=""`) {
		t.Fatalf("expected empty child label to be ignored:\n%s", body)
	}
}
