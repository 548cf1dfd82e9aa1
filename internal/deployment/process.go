package deployment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessController inspects and stops processes on the host.
type ProcessController interface {
	// Terminate stops every process whose command line contains pattern and
	// returns how many were matched.
	Terminate(ctx context.Context, pattern string) (int, error)

	// Alive reports whether pid refers to a running, non-zombie process.
	Alive(ctx context.Context, pid int) (bool, error)
}

// SystemProcesses is the ProcessController backed by the host process table.
type SystemProcesses struct {
	// Grace is how long a process gets to exit after SIGTERM before it is killed.
	Grace time.Duration
}

// NewSystemProcesses returns a controller with a five second grace period.
func NewSystemProcesses() *SystemProcesses {
	return &SystemProcesses{Grace: 5 * time.Second}
}

func (s *SystemProcesses) Terminate(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		return 0, fmt.Errorf("empty process pattern")
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list processes: %w", err)
	}

	self := int32(os.Getpid())
	var matched []*process.Process
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || !strings.Contains(cmdline, pattern) {
			continue
		}
		matched = append(matched, p)
	}

	var errs []error
	for _, p := range matched {
		if err := p.TerminateWithContext(ctx); err != nil && !errors.Is(err, process.ErrorProcessNotRunning) {
			errs = append(errs, fmt.Errorf("pid %d: %w", p.Pid, err))
		}
	}

	deadline := time.Now().Add(s.Grace)
	for _, p := range matched {
		for time.Now().Before(deadline) {
			if running, _ := p.IsRunningWithContext(ctx); !running {
				break
			}
			select {
			case <-ctx.Done():
				return len(matched), ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
		if running, _ := p.IsRunningWithContext(ctx); running {
			if err := p.KillWithContext(ctx); err != nil {
				errs = append(errs, fmt.Errorf("pid %d: kill: %w", p.Pid, err))
			}
		}
	}

	return len(matched), errors.Join(errs...)
}

func (s *SystemProcesses) Alive(ctx context.Context, pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}

	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil || !exists {
		return false, err
	}

	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return false, nil
		}
		return false, err
	}

	status, err := p.StatusWithContext(ctx)
	if err != nil {
		// Status is not available on every platform; existence is enough there.
		return true, nil
	}
	return !slices.Contains(status, process.Zombie), nil
}
