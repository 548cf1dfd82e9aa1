package deployment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"hookdeploy/internal/config"
	"hookdeploy/pkg/cmdutil"

	"github.com/google/uuid"
)

// ErrNoCloneURL is reported when the working copy is missing and neither the
// configuration nor the push payload names a repository to clone.
var ErrNoCloneURL = errors.New("no clone URL configured or present in payload")

// DialFunc opens a connection, matching net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Sequencer runs the redeploy pipeline. Calls to Run are serialized.
type Sequencer struct {
	cfg *config.Config

	runner    CommandRunner
	processes ProcessController
	logger    *slog.Logger
	now       func() time.Time
	sleep     SleepFunc
	dial      DialFunc
	newID     func() string

	mu sync.Mutex
}

// Option configures a Sequencer.
type Option func(*Sequencer)

func WithRunner(r CommandRunner) Option {
	return func(s *Sequencer) { s.runner = r }
}

func WithProcesses(p ProcessController) Option {
	return func(s *Sequencer) { s.processes = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

// WithClock overrides the time source used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// WithSleep overrides how the readiness poll waits between attempts.
func WithSleep(sleep SleepFunc) Option {
	return func(s *Sequencer) { s.sleep = sleep }
}

// WithDialer overrides how the readiness poll connects to the application port.
func WithDialer(dial DialFunc) Option {
	return func(s *Sequencer) { s.dial = dial }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Sequencer) { s.newID = newID }
}

// NewSequencer creates a sequencer for the application described by cfg.
func NewSequencer(cfg *config.Config, opts ...Option) *Sequencer {
	dialer := &net.Dialer{Timeout: time.Second}
	s := &Sequencer{
		cfg:       cfg,
		runner:    ExecRunner{},
		processes: NewSystemProcesses(),
		logger:    slog.Default(),
		now:       time.Now,
		sleep:     sleepContext,
		dial:      dialer.DialContext,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// runState carries values between steps of a single run.
type runState struct {
	req Request
	run *Run
	pid int
}

type stepFunc func(ctx context.Context, st *runState) StepResult

// Run executes every step in order and returns the completed record. A
// failed step stops the pipeline and marks the remaining steps skipped.
func (s *Sequencer) Run(ctx context.Context, req Request) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Trigger == "" {
		req.Trigger = TriggerWebhook
	}

	run := &Run{
		ID:         s.newID(),
		Branch:     req.Branch,
		Ref:        req.Ref,
		Repository: req.Repository,
		Commit:     req.Commit,
		Trigger:    req.Trigger,
		StartedAt:  s.now(),
	}
	logger := s.logger.With("run_id", run.ID, "branch", req.Branch)
	logger.Info("deployment started", "repository", req.Repository, "trigger", req.Trigger)

	st := &runState{req: req, run: run}
	steps := []struct {
		name string
		fn   stepFunc
	}{
		{StepStop, s.stop},
		{StepSync, s.sync},
		{StepCheckout, s.checkout},
		{StepInstall, s.install},
		{StepStart, s.start},
		{StepVerify, s.verify},
	}

	halted := false
	for _, step := range steps {
		if halted {
			run.Steps = append(run.Steps, StepResult{Name: step.name, Outcome: OutcomeSkipped})
			continue
		}

		started := time.Now()
		var res StepResult
		if err := ctx.Err(); err != nil {
			res = failed("deployment cancelled: %v", err)
		} else {
			res = step.fn(ctx, st)
		}
		res.Name = step.name
		res.Duration = time.Since(started)
		res.Detail = string(cmdutil.SanitizeOutput([]byte(res.Detail), s.cfg.Secrets()))
		run.Steps = append(run.Steps, res)

		switch res.Outcome {
		case OutcomeFailed:
			halted = true
			logger.Error("deployment step failed", "step", step.name, "detail", res.Detail)
		case OutcomeWarning:
			logger.Warn("deployment step finished with warnings", "step", step.name, "detail", res.Detail)
		default:
			logger.Info("deployment step finished", "step", step.name, "duration_ms", res.Duration.Milliseconds())
		}
	}

	run.FinishedAt = s.now()
	if run.Status() == StatusSuccess {
		logger.Info("deployment completed", "status", run.Status(), "app_url", s.cfg.AppURL())
	} else {
		logger.Error("deployment failed", "status", run.Status(), "step", run.Failure().Name)
	}

	return run
}

func succeeded(format string, args ...any) StepResult {
	return StepResult{Outcome: OutcomeSuccess, Detail: fmt.Sprintf(format, args...)}
}

func warned(format string, args ...any) StepResult {
	return StepResult{Outcome: OutcomeWarning, Detail: fmt.Sprintf(format, args...)}
}

func failed(format string, args ...any) StepResult {
	return StepResult{Outcome: OutcomeFailed, Detail: fmt.Sprintf(format, args...)}
}

// exec runs argv in the application directory and describes any failure.
// ok is false when the command could not run or exited non-zero.
func (s *Sequencer) exec(ctx context.Context, dir string, timeout time.Duration, argv ...string) (string, bool) {
	res, err := s.runner.Run(ctx, dir, timeout, argv)
	output := ""
	if res != nil {
		output = strings.TrimSpace(res.Output)
	}

	if err == nil && res.OK() {
		return output, true
	}

	msg := cmdutil.FormatCommand(argv)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	} else {
		msg = fmt.Sprintf("%s: exit code %d", msg, res.ReturnCode)
	}
	if output != "" {
		msg += "\n" + output
	}
	return msg, false
}
