package deployment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"hookdeploy/internal/config"
)

// fakeResponse is returned for commands whose argv starts with prefix.
type fakeResponse struct {
	prefix string
	code   int
	output string
	err    error
}

type fakeCall struct {
	dir  string
	argv []string
}

type fakeRunner struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     []fakeCall
	spawned   [][]string
	spawnPID  int
	spawnErr  error
	delay     time.Duration
	inFlight  int
	maxFlight int
}

func (f *fakeRunner) respond(prefix string, code int, output string) {
	f.responses = append(f.responses, fakeResponse{prefix: prefix, code: code, output: output})
}

func (f *fakeRunner) Run(ctx context.Context, dir string, timeout time.Duration, argv []string) (*ExecutionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{dir: dir, argv: argv})
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--

	line := strings.Join(argv, " ")
	for _, r := range f.responses {
		if strings.HasPrefix(line, r.prefix) {
			if r.err != nil {
				return &ExecutionResult{ReturnCode: -1, Output: r.output}, r.err
			}
			res := &ExecutionResult{ReturnCode: r.code, Output: r.output}
			if r.code != 0 {
				return res, errors.New("command failed: exit status")
			}
			return res, nil
		}
	}
	return &ExecutionResult{}, nil
}

func (f *fakeRunner) Spawn(dir string, argv []string, logPath string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawned = append(f.spawned, argv)
	if f.spawnErr != nil {
		return 0, f.spawnErr
	}
	return f.spawnPID, nil
}

// commands returns every executed command line in order.
func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = strings.Join(c.argv, " ")
	}
	return out
}

type fakeProcesses struct {
	mu             sync.Mutex
	terminated     []string
	terminateCount int
	terminateErr   error
	alive          func(pid int) bool
}

func (f *fakeProcesses) Terminate(ctx context.Context, pattern string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, pattern)
	return f.terminateCount, f.terminateErr
}

func (f *fakeProcesses) Alive(ctx context.Context, pid int) (bool, error) {
	if f.alive == nil {
		return true, nil
	}
	return f.alive(pid), nil
}

// recordingSleep collects requested delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func dialOK(ctx context.Context, network, address string) (net.Conn, error) {
	client, server := net.Pipe()
	server.Close()
	return client, nil
}

func dialRefused(ctx context.Context, network, address string) (net.Conn, error) {
	return nil, errors.New("connection refused")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// testConfig returns a process-variant config rooted in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.App.Dir = dir + "/app"
	cfg.App.PIDFile = dir + "/catty-app.pid"
	cfg.App.LogFile = dir + "/catty-app.log"
	cfg.Readiness.Attempts = 3
	cfg.Readiness.InitialDelay = 10 * time.Millisecond
	cfg.Readiness.MaxDelay = 25 * time.Millisecond
	return cfg
}

type harness struct {
	runner *fakeRunner
	procs  *fakeProcesses
	sleep  *recordingSleep
	seq    *Sequencer
}

func newHarness(cfg *config.Config, opts ...Option) *harness {
	h := &harness{
		runner: &fakeRunner{spawnPID: 4242},
		procs:  &fakeProcesses{},
		sleep:  &recordingSleep{},
	}
	base := []Option{
		WithRunner(h.runner),
		WithProcesses(h.procs),
		WithLogger(testLogger()),
		WithSleep(h.sleep.sleep),
		WithDialer(dialOK),
		WithIDGenerator(func() string { return "run-1" }),
	}
	h.seq = NewSequencer(cfg, append(base, opts...)...)
	return h
}
