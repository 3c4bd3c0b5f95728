package supervisor

import "sync/atomic"

// State is the lifecycle state of a Supervisor.
type State int32

const (
	StateNotStarted State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// stateMachine enforces NotStarted -> Running -> ShuttingDown -> Stopped with
// compare-and-swap transitions only.
type stateMachine struct {
	v atomic.Int32
}

func (m *stateMachine) load() State {
	return State(m.v.Load())
}

func (m *stateMachine) transition(from, to State) bool {
	if to != from+1 {
		return false
	}
	return m.v.CompareAndSwap(int32(from), int32(to))
}
