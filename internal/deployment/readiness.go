package deployment

import (
	"context"
	"time"
)

// Backoff bounds a readiness poll.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// Delay returns how long to wait before the given attempt (1-based). The
// delay doubles with every attempt and never exceeds Max.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Probe checks readiness once. It returns true when the application is ready,
// and a non-nil error when it can never become ready (for example because the
// process exited). A false result with a nil error means "try again"; detail
// describes why.
type Probe func(ctx context.Context) (ready bool, detail string, err error)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Poll probes until the application is ready, the probe reports a fatal
// error, or the attempts are used up.
func Poll(ctx context.Context, b Backoff, probe Probe, sleep SleepFunc) Readiness {
	if sleep == nil {
		sleep = sleepContext
	}

	var detail string
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		if err := sleep(ctx, b.Delay(attempt)); err != nil {
			return Readiness{Outcome: ReadinessFailed, Attempts: attempt - 1, Detail: err.Error()}
		}

		ready, d, err := probe(ctx)
		if err != nil {
			return Readiness{Outcome: ReadinessFailed, Attempts: attempt, Detail: err.Error()}
		}
		if ready {
			return Readiness{Outcome: ReadinessReady, Attempts: attempt, Detail: d}
		}
		detail = d
	}

	return Readiness{Outcome: ReadinessTimeout, Attempts: b.Attempts, Detail: detail}
}
