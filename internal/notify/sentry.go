package notify

import (
	"context"
	"fmt"
	"time"

	"hookdeploy/internal/deployment"

	"github.com/getsentry/sentry-go"
)

// Sentry reports failed runs and worker panics.
type Sentry struct {
	hub *sentry.Hub
}

// InitSentry configures the global Sentry client and returns its hub.
func InitSentry(dsn, environment, release string) (*sentry.Hub, error) {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	}); err != nil {
		return nil, fmt.Errorf("sentry: failed to initialize: %w", err)
	}
	return sentry.CurrentHub(), nil
}

func NewSentry(hub *sentry.Hub) *Sentry {
	return &Sentry{hub: hub}
}

// Notify captures a message for failed runs. Successful runs are ignored.
func (s *Sentry) Notify(ctx context.Context, run *deployment.Run) error {
	failure := run.Failure()
	if failure == nil {
		return nil
	}

	hub := s.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("run_id", run.ID)
		scope.SetTag("branch", run.Branch)
		scope.SetTag("step", failure.Name)
		scope.SetTag("trigger", run.Trigger)
		scope.SetContext("deployment", sentry.Context{
			"repository": run.Repository,
			"commit":     run.Commit,
			"detail":     failure.Detail,
			"steps":      StepSummary(run),
		})
		hub.CaptureMessage(Headline(run))
	})
	return nil
}

// CaptureRecovered reports a panic recovered from the deployment worker.
func (s *Sentry) CaptureRecovered(recovered any, stack []byte) {
	hub := s.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetContext("panic", sentry.Context{"stack": string(stack)})
		hub.Recover(recovered)
	})
}

// Flush waits up to timeout for buffered events to be sent.
func (s *Sentry) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}
