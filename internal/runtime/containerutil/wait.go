package containerutil

import (
	"errors"
	"fmt"

	"github.com/Paintersrp/workit/internal/runtime"
)

type WaitStatus struct {
	ExitCode     int64
	ErrorMessage string
	Err          error
	OOMKilled    bool
	// Stopped is set when the container was stopped on request.
	Stopped bool
}

// ExitStatus converts a container wait result. A container stopped on
// request that did not exit cleanly counts as killed.
func ExitStatus(status WaitStatus) runtime.ExitStatus {
	exit := runtime.ExitStatus{Code: int(status.ExitCode), Err: waitError(status)}
	if status.Stopped && status.ExitCode != 0 {
		exit.Code = -1
		exit.Killed = true
	}
	return exit
}

func waitError(status WaitStatus) error {
	var err error
	switch {
	case status.Err != nil:
		err = status.Err
	case status.ErrorMessage != "":
		err = errors.New(status.ErrorMessage)
	}
	if status.OOMKilled {
		if err == nil {
			return errors.New("container terminated by the kernel OOM killer")
		}
		return fmt.Errorf("container terminated by the kernel OOM killer: %w", err)
	}
	return err
}
