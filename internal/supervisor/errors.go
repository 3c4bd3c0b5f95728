package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned when Start is called more than once.
	ErrAlreadyStarted = errors.New("supervisor already started")
	// ErrNotRunning is returned by Shutdown when Start never succeeded.
	ErrNotRunning = errors.New("supervisor is not running")
)

// MissingTargetError reports a launch target that does not exist. It is
// returned by Start before any child is spawned.
type MissingTargetError struct {
	Label string
	Path  string
}

func (e *MissingTargetError) Error() string {
	return fmt.Sprintf("launch target for %s not found: %s", e.Label, e.Path)
}

// ChildExitError describes a child that exited on its own with a non-zero
// code or was killed by a signal outside of a shutdown. It is reported, not
// returned: siblings keep running unless fail-together is enabled.
type ChildExitError struct {
	Label  string
	Code   int
	Killed bool
}

func (e *ChildExitError) Error() string {
	if e.Killed {
		return fmt.Sprintf("%s killed by signal", e.Label)
	}
	return fmt.Sprintf("%s exited with code %d", e.Label, e.Code)
}
