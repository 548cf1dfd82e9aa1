// Package dispatch runs deployments one at a time in the background.
//
// Webhook handlers Submit a request and return immediately; a single worker
// goroutine runs the pipeline, records the result and sends notifications.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"hookdeploy/internal/deployment"
	"hookdeploy/internal/notify"

	"github.com/google/uuid"
)

// DefaultSize is the queue capacity used when none is configured.
const DefaultSize = 16

var (
	ErrQueueFull   = errors.New("deployment queue is full")
	ErrQueueClosed = errors.New("deployment queue is closed")
)

// Runner executes one deployment.
type Runner interface {
	Run(ctx context.Context, req deployment.Request) *deployment.Run
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, run *deployment.Run) (int64, error)
}

// PanicHandler is told about a panic recovered from the runner.
type PanicHandler func(recovered any, stack []byte)

type Queue struct {
	runner   Runner
	recorder Recorder
	notifier notify.Notifier
	onPanic  PanicHandler
	logger   *slog.Logger

	items chan deployment.Request
	done  chan struct{}

	// pending counts submitted requests that have not finished yet.
	pendingMu sync.Mutex
	idle      *sync.Cond
	pending   int

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

type Option func(*Queue)

// WithRecorder stores every finished run.
func WithRecorder(r Recorder) Option {
	return func(q *Queue) { q.recorder = r }
}

// WithNotifier sends every finished run to n.
func WithNotifier(n notify.Notifier) Option {
	return func(q *Queue) { q.notifier = n }
}

func WithPanicHandler(h PanicHandler) Option {
	return func(q *Queue) { q.onPanic = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// New creates a queue holding up to size requests and starts its worker.
func New(runner Runner, size int, opts ...Option) *Queue {
	if size < 1 {
		size = DefaultSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		runner: runner,
		logger: slog.Default(),
		items:  make(chan deployment.Request, size),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	q.idle = sync.NewCond(&q.pendingMu)
	for _, opt := range opts {
		opt(q)
	}

	go q.work()
	return q
}

// Submit enqueues req without blocking.
func (q *Queue) Submit(req deployment.Request) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.track(1)
	select {
	case q.items <- req:
		return nil
	default:
		q.track(-1)
		return ErrQueueFull
	}
}

// Len returns the number of requests waiting to run.
func (q *Queue) Len() int {
	return len(q.items)
}

// Wait blocks until no submitted request is waiting or running. Submit may be
// called concurrently; Wait then also waits for those requests.
func (q *Queue) Wait() {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	for q.pending > 0 {
		q.idle.Wait()
	}
}

func (q *Queue) track(delta int) {
	q.pendingMu.Lock()
	q.pending += delta
	if q.pending == 0 {
		q.idle.Broadcast()
	}
	q.pendingMu.Unlock()
}

// Close stops accepting requests and waits for queued ones to finish. If ctx
// ends first, the running deployment is cancelled and ctx.Err is returned once
// the worker exits.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-q.done
		return ctx.Err()
	}
}

func (q *Queue) work() {
	defer close(q.done)
	for req := range q.items {
		q.process(req)
		q.track(-1)
	}
}

func (q *Queue) process(req deployment.Request) {
	run := q.safeRun(req)

	// Recording and notifying must not be cut short by a shutdown.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(q.ctx), 30*time.Second)
	defer cancel()

	if q.recorder != nil {
		if _, err := q.recorder.RecordRun(ctx, run); err != nil {
			q.logger.Error("Failed to record deployment history", "error", err, "run_id", run.ID)
		}
	}

	if q.notifier != nil {
		if err := q.notifier.Notify(ctx, run); err != nil {
			q.logger.Error("Failed to send deployment notification", "error", err, "run_id", run.ID)
		}
	}
}

// safeRun runs the pipeline, turning a panic into a failed run.
func (q *Queue) safeRun(req deployment.Request) (run *deployment.Run) {
	started := time.Now()

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		stack := debug.Stack()
		q.logger.Error("panic in deployment worker", "recover", r, "stack", string(stack))
		if q.onPanic != nil {
			q.onPanic(r, stack)
		}
		run = &deployment.Run{
			ID:         uuid.NewString(),
			Branch:     req.Branch,
			Ref:        req.Ref,
			Repository: req.Repository,
			Commit:     req.Commit,
			Trigger:    req.Trigger,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Steps: []deployment.StepResult{{
				Name:     "pipeline",
				Outcome:  deployment.OutcomeFailed,
				Detail:   fmt.Sprintf("panic: %v", r),
				Duration: time.Since(started),
			}},
		}
	}()

	return q.runner.Run(q.ctx, req)
}
