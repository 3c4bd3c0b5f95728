//go:build !windows

package process

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"
)

func (p *processInstance) terminate(ctx context.Context, force bool) error {
	if p.cmd.Process == nil {
		return nil
	}

	if !force {
		// Attempt a graceful shutdown first.
		if err := p.signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("signal %s: %w", p.name, err)
		}

		timer := time.NewTimer(p.grace)
		defer timer.Stop()
		select {
		case <-p.done:
			return nil
		case <-timer.C:
			p.logger.Warn("grace period expired, killing process", "grace", p.grace)
		case <-ctx.Done():
		}
	}

	if err := p.signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("kill %s: %w", p.name, err)
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// signal delivers sig to the child's process group when it owns one, and to
// the child alone otherwise.
func (p *processInstance) signal(sig syscall.Signal) error {
	pid := p.cmd.Process.Pid
	if attr := p.cmd.SysProcAttr; attr != nil && attr.Setpgid {
		pid = -pid
	}
	if err := syscall.Kill(pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
