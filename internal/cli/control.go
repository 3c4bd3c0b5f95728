package cli

import (
	stdcontext "context"
	"fmt"
	"time"

	"github.com/Paintersrp/workit/internal/api"
	"github.com/Paintersrp/workit/internal/launch"
	"github.com/Paintersrp/workit/internal/probe"
	"github.com/Paintersrp/workit/internal/supervisor"
)

const accessPointProbeTimeout = 300 * time.Millisecond

// supervisorControl is the part of the supervisor the control API drives.
type supervisorControl interface {
	State() supervisor.State
	Status() supervisor.Status
	Shutdown(stdcontext.Context) error
}

// controlAPI exposes supervisor operations for the HTTP control plane.
type controlAPI struct {
	sup       supervisorControl
	variant   launch.Variant
	now       func() time.Time
	reachable func(ctx stdcontext.Context, url string) bool
}

func newControlAPI(sup supervisorControl, variant launch.Variant) *controlAPI {
	if sup == nil {
		return nil
	}
	return &controlAPI{
		sup:     sup,
		variant: variant,
		now:     time.Now,
		reachable: func(ctx stdcontext.Context, url string) bool {
			return probe.Reachable(ctx, url, accessPointProbeTimeout)
		},
	}
}

// Status returns the current supervisor status snapshot.
func (c *controlAPI) Status(ctx stdcontext.Context) (*api.StatusReport, error) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	status := c.sup.Status()
	report := &api.StatusReport{
		Variant:     c.variant.String(),
		State:       status.State,
		GeneratedAt: c.now(),
		Children:    make([]api.ChildReport, 0, len(status.Children)),
	}
	for _, child := range status.Children {
		report.Children = append(report.Children, api.ChildReport{
			Label:    child.Label,
			PID:      child.PID,
			State:    string(child.State),
			ExitCode: child.ExitCode,
			Killed:   child.Killed,
		})
	}
	probeCtx := stdcontext.Background()
	if ctx != nil {
		probeCtx = ctx
	}
	for _, ap := range status.AccessPoints {
		entry := api.AccessPoint{Name: ap.Name, URL: ap.URL}
		if status.State == supervisor.StateRunning.String() {
			up := c.reachable(probeCtx, ap.URL)
			entry.Reachable = &up
		}
		report.AccessPoints = append(report.AccessPoints, entry)
	}
	return report, nil
}

// RequestShutdown starts a shutdown and returns without waiting for it.
func (c *controlAPI) RequestShutdown(stdcontext.Context) (*api.ShutdownResult, error) {
	if state := c.sup.State(); state != supervisor.StateRunning {
		return nil, fmt.Errorf("%w: supervisor is %s", api.ErrNotRunning, state)
	}
	requestedAt := c.now()
	// The request context ends with the HTTP response; shutdown must outlive it.
	go func() {
		_ = c.sup.Shutdown(stdcontext.Background())
	}()
	return &api.ShutdownResult{
		State:       supervisor.StateShuttingDown.String(),
		RequestedAt: requestedAt,
	}, nil
}
