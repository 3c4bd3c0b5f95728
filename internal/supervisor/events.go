package supervisor

import "time"

// EventType captures lifecycle notifications emitted by the supervisor.
type EventType string

const (
	EventTypeStarting     EventType = "starting"
	EventTypeRunning      EventType = "running"
	EventTypeFailed       EventType = "failed"
	EventTypeExited       EventType = "exited"
	EventTypeKilled       EventType = "killed"
	EventTypeReady        EventType = "ready"
	EventTypeSignal       EventType = "signal"
	EventTypeShuttingDown EventType = "shutting_down"
	EventTypeStopped      EventType = "stopped"
)

// Event represents a single lifecycle notification. Child is empty for
// supervisor-wide events.
type Event struct {
	Timestamp time.Time
	Child     string
	Type      EventType
	Message   string
	PID       int
	Code      int
	Err       error
}

// sendEvent delivers evt without blocking; slow consumers miss events rather
// than stalling the shutdown path.
func sendEvent(events chan<- Event, evt Event) {
	if events == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case events <- evt:
	default:
	}
}
