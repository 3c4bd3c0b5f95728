//go:build windows

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

func (p *processInstance) terminate(ctx context.Context, force bool) error {
	if p.cmd.Process == nil {
		return nil
	}
	if !force {
		// Interrupt is not deliverable on every Windows console; fall through
		// to Kill when it fails.
		if err := p.cmd.Process.Signal(os.Interrupt); err == nil {
			timer := time.NewTimer(p.grace)
			defer timer.Stop()
			select {
			case <-p.done:
				return nil
			case <-timer.C:
			case <-ctx.Done():
			}
		}
	}

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill process %s: %w", p.name, err)
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
