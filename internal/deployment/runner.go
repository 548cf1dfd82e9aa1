package deployment

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"hookdeploy/internal/security"
	"hookdeploy/pkg/cmdutil"
)

// ExecutionResult represents the result of running a command
type ExecutionResult struct {
	ReturnCode int
	Output     string
	Duration   time.Duration
}

// OK checks if the execution was successful
func (r *ExecutionResult) OK() bool {
	return r != nil && r.ReturnCode == 0
}

// CommandRunner runs the external programs the pipeline depends on.
type CommandRunner interface {
	// Run executes argv in dir and waits for it to finish. A non-nil result is
	// returned even on error.
	Run(ctx context.Context, dir string, timeout time.Duration, argv []string) (*ExecutionResult, error)

	// Spawn starts argv in dir without waiting for it. Output is appended to
	// logPath. It returns the PID of the new process.
	Spawn(dir string, argv []string, logPath string) (int, error)
}

// ExecRunner is the CommandRunner backed by real processes.
type ExecRunner struct{}

// Run executes a command with a timeout in a specific directory
func (ExecRunner) Run(ctx context.Context, dir string, timeout time.Duration, argv []string) (*ExecutionResult, error) {
	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{
		Dir:            dir,
		Timeout:        timeout,
		CombinedOutput: true,
	}, argv)

	execResult := &ExecutionResult{
		ReturnCode: result.ExitCode,
		Output:     string(result.Output),
		Duration:   result.Duration,
	}

	return execResult, err
}

// Spawn starts a detached process whose stdout and stderr go to logPath.
func (ExecRunner) Spawn(dir string, argv []string, logPath string) (int, error) {
	if len(argv) == 0 {
		return 0, fmt.Errorf("empty command")
	}

	if logPath == "" {
		logPath = os.DevNull
	} else if err := os.MkdirAll(filepath.Dir(logPath), security.PermDirectory); err != nil {
		return 0, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, security.PermLogFile)
	if err != nil {
		return 0, fmt.Errorf("failed to open application log: %w", err)
	}
	// The child keeps its own descriptor
	defer logFile.Close()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", cmdutil.FormatCommand(argv), err)
	}

	// Reap the child when it exits so it never lingers as a zombie.
	go func() {
		_ = cmd.Wait()
	}()

	return cmd.Process.Pid, nil
}
