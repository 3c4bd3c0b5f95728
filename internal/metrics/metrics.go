package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	childRunning = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "workit",
		Name:      "child_running",
		Help:      "Whether a supervised child is running (1=running, 0=not running).",
	}, []string{"child"})

	childExits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workit",
		Name:      "child_exits_total",
		Help:      "Total number of child terminations by outcome.",
	}, []string{"child", "outcome"})

	outputLines = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workit",
		Name:      "output_lines_total",
		Help:      "Total number of output lines forwarded to the console.",
	}, []string{"child", "stream"})

	shutdowns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "workit",
		Name:      "shutdowns_total",
		Help:      "Total number of shutdown sequences executed.",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "workit",
		Name:      "build_info",
		Help:      "Build metadata for the running workit binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(childRunning, childExits, outputLines, shutdowns, buildInfo)
}

// Registry returns the Prometheus registry containing all workit metrics.
func Registry() *prometheus.Registry {
	return registry
}

// SetChildRunning records whether the named child is running.
func SetChildRunning(child string, running bool) {
	if child == "" {
		return
	}
	value := 0.0
	if running {
		value = 1.0
	}
	childRunning.WithLabelValues(child).Set(value)
}

// RecordChildExit counts a child termination. Outcome is one of "exited",
// "failed" or "killed".
func RecordChildExit(child, outcome string) {
	if child == "" || outcome == "" {
		return
	}
	childExits.WithLabelValues(child, outcome).Inc()
}

// IncOutputLines counts a forwarded output line.
func IncOutputLines(child, stream string) {
	if child == "" {
		return
	}
	outputLines.WithLabelValues(child, stream).Inc()
}

// IncShutdowns counts an executed shutdown sequence.
func IncShutdowns() {
	shutdowns.Inc()
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}

// ResetChild clears the series recorded for a child.
func ResetChild(child string) {
	if child == "" {
		return
	}
	childRunning.DeleteLabelValues(child)
	childExits.DeletePartialMatch(prometheus.Labels{"child": child})
	outputLines.DeletePartialMatch(prometheus.Labels{"child": child})
}
