package deployment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"hookdeploy/internal/config"
	"hookdeploy/internal/security"
	"hookdeploy/pkg/cmdutil"
	"hookdeploy/pkg/fileutil"
)

// logTailBytes is how much of the application log is attached when it exits early.
const logTailBytes = 2048

func (s *Sequencer) stop(ctx context.Context, st *runState) StepResult {
	app := s.cfg.App

	if app.Variant == config.VariantService {
		out, ok := s.exec(ctx, "", s.cfg.Timeouts.Command, "systemctl", "stop", app.Unit)
		if !ok {
			return warned("could not stop %s: %s", app.Unit, out)
		}
		return succeeded("stopped %s", app.Unit)
	}

	n, err := s.processes.Terminate(ctx, app.ProcessPattern)
	if err != nil {
		return warned("could not stop processes matching %q: %v", app.ProcessPattern, err)
	}
	if n == 0 {
		return succeeded("no running process matched %q", app.ProcessPattern)
	}
	return succeeded("stopped %d process(es) matching %q", n, app.ProcessPattern)
}

func (s *Sequencer) sync(ctx context.Context, st *runState) StepResult {
	app := s.cfg.App
	branch := st.req.Branch

	if err := security.ValidateBranchName(branch); err != nil {
		return failed("invalid branch %q: %v", branch, err)
	}

	if !fileutil.PathExists(filepath.Join(app.Dir, ".git")) {
		url := app.RepoURL
		if url == "" {
			url = st.req.CloneURL
		}
		if url == "" {
			return failed("%v", ErrNoCloneURL)
		}
		if err := security.ValidateCloneURL(url); err != nil {
			return failed("refusing to clone %q: %v", url, err)
		}

		out, ok := s.exec(ctx, "", s.cfg.Timeouts.Command, "git", "clone", url, app.Dir)
		if !ok {
			return failed("clone failed: %s", out)
		}
		return succeeded("cloned %s into %s", url, app.Dir)
	}

	var warnings []string
	if out, ok := s.exec(ctx, app.Dir, s.cfg.Timeouts.Command, "git", "fetch", "origin"); !ok {
		warnings = append(warnings, "fetch failed: "+out)
	}
	if out, ok := s.exec(ctx, app.Dir, s.cfg.Timeouts.Command, "git", "checkout", branch); !ok {
		warnings = append(warnings, "checkout failed: "+out)
	}

	out, ok := s.exec(ctx, app.Dir, s.cfg.Timeouts.Command, "git", "pull", "origin", branch)
	if !ok {
		return failed("pull failed: %s", strings.Join(append(warnings, out), "\n"))
	}
	if len(warnings) > 0 {
		return warned("pulled %s with warnings:\n%s", branch, strings.Join(warnings, "\n"))
	}
	return succeeded("pulled %s", branch)
}

func (s *Sequencer) checkout(ctx context.Context, st *runState) StepResult {
	out, ok := s.exec(ctx, s.cfg.App.Dir, s.cfg.Timeouts.Command, "git", "checkout", st.req.Branch)
	if !ok {
		return warned("checkout of %s failed: %s", st.req.Branch, out)
	}
	return succeeded("on branch %s", st.req.Branch)
}

// install only ever warns.
func (s *Sequencer) install(ctx context.Context, st *runState) StepResult {
	app := s.cfg.App
	var warnings []string

	if !fileutil.DirExists(filepath.Join(app.Dir, app.Venv)) {
		if out, ok := s.exec(ctx, app.Dir, s.cfg.Timeouts.Command, app.Python, "-m", "venv", app.Venv); !ok {
			warnings = append(warnings, "venv creation failed: "+out)
		}
	}

	pip := filepath.Join(app.Dir, app.Venv, "bin", "pip")
	if out, ok := s.exec(ctx, app.Dir, s.cfg.Timeouts.Install, pip, "install", "-r", app.Requirements); !ok {
		warnings = append(warnings, "dependency install failed: "+out)
	}

	if len(warnings) > 0 {
		return warned("%s", strings.Join(warnings, "\n"))
	}
	return succeeded("dependencies installed from %s", app.Requirements)
}

func (s *Sequencer) start(ctx context.Context, st *runState) StepResult {
	app := s.cfg.App

	if app.Variant == config.VariantService {
		out, ok := s.exec(ctx, "", s.cfg.Timeouts.Command, "systemctl", "start", app.Unit)
		if !ok {
			return failed("could not start %s: %s", app.Unit, out)
		}
		return succeeded("started %s", app.Unit)
	}

	argv, err := StartArgs(app)
	if err != nil {
		return failed("%v", err)
	}

	pid, err := s.runner.Spawn(app.Dir, argv, app.LogFile)
	if err != nil {
		return failed("could not start application: %v", err)
	}
	st.pid = pid
	return succeeded("started %s (pid %d)", cmdutil.FormatCommand(argv), pid)
}

func (s *Sequencer) verify(ctx context.Context, st *runState) StepResult {
	app := s.cfg.App
	backoff := Backoff{
		Attempts: s.cfg.Readiness.Attempts,
		Initial:  s.cfg.Readiness.InitialDelay,
		Max:      s.cfg.Readiness.MaxDelay,
	}

	var probe Probe
	if app.Variant == config.VariantService {
		probe = s.serviceProbe()
	} else {
		probe = s.processProbe(st.pid)
	}

	readiness := Poll(ctx, backoff, probe, s.sleep)
	st.run.Readiness = &readiness

	if readiness.Outcome != ReadinessReady {
		detail := fmt.Sprintf("application not ready after %d attempt(s) (%s): %s", readiness.Attempts, readiness.Outcome, readiness.Detail)
		if app.Variant == config.VariantProcess {
			if tail := readTail(app.LogFile, logTailBytes); tail != "" {
				detail += "\n" + tail
			}
		}
		return StepResult{Outcome: OutcomeFailed, Detail: detail}
	}

	if app.Variant == config.VariantProcess {
		if err := fileutil.WriteFileAtomic(app.PIDFile, []byte(strconv.Itoa(st.pid)), security.PermPIDFile); err != nil {
			return warned("application ready on port %d but PID file not written: %v", app.Port, err)
		}
		return succeeded("application ready on port %d (pid %d, %d attempt(s))", app.Port, st.pid, readiness.Attempts)
	}
	return succeeded("%s active after %d attempt(s)", app.Unit, readiness.Attempts)
}

func (s *Sequencer) processProbe(pid int) Probe {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(s.cfg.App.Port))
	return func(ctx context.Context) (bool, string, error) {
		alive, err := s.processes.Alive(ctx, pid)
		if err != nil {
			return false, fmt.Sprintf("cannot inspect pid %d: %v", pid, err), nil
		}
		if !alive {
			return false, "", fmt.Errorf("process %d exited", pid)
		}

		conn, err := s.dial(ctx, "tcp", addr)
		if err != nil {
			return false, fmt.Sprintf("port %s not accepting connections: %v", addr, err), nil
		}
		conn.Close()
		return true, "", nil
	}
}

func (s *Sequencer) serviceProbe() Probe {
	unit := s.cfg.App.Unit
	return func(ctx context.Context) (bool, string, error) {
		out, ok := s.exec(ctx, "", s.cfg.Timeouts.Command, "systemctl", "is-active", unit)
		if !ok {
			return false, out, nil
		}
		return true, "", nil
	}
}

// StartArgs builds the argv for the process variant: {port} is substituted
// and a relative executable path is resolved against the application directory.
func StartArgs(app config.AppConfig) ([]string, error) {
	command := strings.ReplaceAll(app.StartCommand, "{port}", strconv.Itoa(app.Port))
	argv, err := cmdutil.ParseCommandString(command)
	if err != nil {
		return nil, fmt.Errorf("invalid start command: %w", err)
	}
	if strings.ContainsRune(argv[0], '/') && !filepath.IsAbs(argv[0]) {
		argv[0] = filepath.Join(app.Dir, argv[0])
	}
	return argv, nil
}

func readTail(path string, n int64) string {
	if path == "" {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ""
	}
	offset := info.Size() - n
	if offset < 0 {
		offset = 0
	}
	data, err := io.ReadAll(io.NewSectionReader(f, offset, info.Size()-offset))
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	return strings.TrimSpace(string(data))
}
