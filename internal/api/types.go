package api

import (
	stdcontext "context"
	"errors"
	"time"
)

var (
	ErrNotRunning = errors.New("not running")
)

// ChildReport describes one supervised child.
type ChildReport struct {
	Label    string `json:"label"`
	PID      int    `json:"pid"`
	State    string `json:"state"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Killed   bool   `json:"killed,omitempty"`
}

// AccessPoint is a URL served by the launched application.
type AccessPoint struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	// Reachable is nil when the endpoint was not probed.
	Reachable *bool `json:"reachable,omitempty"`
}

// StatusReport aggregates supervisor-wide status information.
type StatusReport struct {
	Variant      string        `json:"variant"`
	State        string        `json:"state"`
	GeneratedAt  time.Time     `json:"generated_at"`
	Children     []ChildReport `json:"children"`
	AccessPoints []AccessPoint `json:"access_points,omitempty"`
}

// ShutdownResult acknowledges a shutdown request.
type ShutdownResult struct {
	State       string    `json:"state"`
	RequestedAt time.Time `json:"requested_at"`
}

// Controller exposes the supervisor operations required by control servers.
type Controller interface {
	Status(stdcontext.Context) (*StatusReport, error)
	// RequestShutdown begins shutdown without waiting for it to complete.
	RequestShutdown(stdcontext.Context) (*ShutdownResult, error)
}
