// Package launcher starts the MedAssistBot backend under supervision and
// decides when it is ready to serve.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/loykin/medassist/internal/env"
	"github.com/loykin/medassist/internal/logger"
	"github.com/loykin/medassist/internal/metrics"
	"github.com/loykin/medassist/internal/process"
	"github.com/spf13/afero"
)

const (
	DefaultApp           = "app:app"
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 8000
	DefaultReadyTimeout  = 30 * time.Second
	DefaultReadyInterval = 250 * time.Millisecond
	DefaultGrace         = 3 * time.Second
	DefaultStopTimeout   = 10 * time.Second
)

// ErrNotReady is returned when the backend stays alive but never answers its
// health endpoint within the ready timeout.
var ErrNotReady = errors.New("backend not ready")

var errChildExited = errors.New("backend exited")

// ExitedEarlyError reports a backend that died before it became ready,
// together with everything it wrote.
type ExitedEarlyError struct {
	Stdout string
	Stderr string
	Err    error // exit status; nil for a clean exit
}

func (e *ExitedEarlyError) Error() string {
	if e.Err == nil {
		return "backend exited during startup"
	}
	return "backend exited during startup: " + e.Err.Error()
}

func (e *ExitedEarlyError) Unwrap() error { return e.Err }

// Config describes how the backend is launched and supervised.
type Config struct {
	Dir      string   // backend directory; the child's working directory
	VenvDirs []string // virtualenv directories inside Dir, in preference order
	App      string   // ASGI application, module:attribute
	Host     string
	Port     int
	Reload   bool
	Env      []string // extra KEY=VALUE entries merged over the OS environment
	// Command replaces the interpreter and its arguments when non-empty.
	Command []string

	// HealthURL is polled until it answers 2xx. Empty disables the probe and
	// falls back to requiring the child to survive Grace.
	HealthURL     string
	ReadyTimeout  time.Duration
	ReadyInterval time.Duration
	Grace         time.Duration
	StopTimeout   time.Duration

	Log logger.Config
}

func (c Config) withDefaults() Config {
	// the interpreter path is joined onto Dir and the child also runs in Dir,
	// so a relative Dir would be applied twice
	if c.Dir != "" {
		if abs, err := filepath.Abs(c.Dir); err == nil {
			c.Dir = abs
		}
	}
	if c.App == "" {
		c.App = DefaultApp
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if len(c.VenvDirs) == 0 {
		c.VenvDirs = []string{"venv", ".venv"}
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.ReadyInterval <= 0 {
		c.ReadyInterval = DefaultReadyInterval
	}
	if c.Grace < 0 {
		c.Grace = DefaultGrace
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	return c
}

// Supervisor owns the backend child from spawn to teardown.
type Supervisor struct {
	cfg    Config
	fs     afero.Fs
	logger *slog.Logger
	client *http.Client

	mu   sync.Mutex
	proc *process.Process
}

// New returns a Supervisor. A nil fs uses the OS filesystem and a nil logger
// uses slog.Default.
func New(cfg Config, fs afero.Fs, l *slog.Logger) *Supervisor {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if l == nil {
		l = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Supervisor{
		cfg:    cfg,
		fs:     fs,
		logger: l,
		client: &http.Client{Timeout: pingTimeout(cfg.ReadyInterval)},
	}
}

func pingTimeout(interval time.Duration) time.Duration {
	if t := 4 * interval; t > time.Second {
		return t
	}
	return time.Second
}

// Spec returns the process spec the backend is started with.
func (s *Supervisor) Spec() process.Spec {
	var path string
	var args []string
	if len(s.cfg.Command) > 0 {
		path, args = s.cfg.Command[0], s.cfg.Command[1:]
	} else {
		path = FindPython(s.fs, s.cfg.Dir, s.cfg.VenvDirs)
		args = UvicornArgs(s.cfg.App, s.cfg.Host, s.cfg.Port, s.cfg.Reload)
	}
	return process.Spec{
		Name:    "backend",
		Path:    path,
		Args:    args,
		WorkDir: s.cfg.Dir,
		Env:     env.New().Merge(s.cfg.Env),
		Log:     s.cfg.Log,
	}
}

// Process returns the running backend, or nil before a successful Start.
func (s *Supervisor) Process() *process.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

// Start spawns the backend and blocks until it is ready. On failure the
// child has been stopped and no handle is kept.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.proc != nil {
		s.mu.Unlock()
		return errors.New("backend already started")
	}
	s.mu.Unlock()

	spec := s.Spec()
	s.logger.Info("starting backend", "path", spec.Path, "args", spec.Args, "dir", spec.WorkDir)
	proc := process.New(spec)
	if err := proc.Start(); err != nil {
		metrics.IncBackendStartFailure("spawn")
		return fmt.Errorf("start backend: %w", err)
	}
	metrics.IncBackendStart()
	started := time.Now()

	var err error
	if s.cfg.HealthURL == "" {
		err = s.awaitGrace(ctx, proc)
	} else {
		err = s.awaitHealthy(ctx, proc)
	}
	if err != nil {
		return err
	}
	metrics.ObserveBackendReady(time.Since(started).Seconds())
	s.logger.Info("backend ready", "pid", proc.PID(), "after", time.Since(started).Round(time.Millisecond))

	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) awaitGrace(ctx context.Context, proc *process.Process) error {
	err := proc.EnforceStartDuration(ctx, s.cfg.Grace)
	switch {
	case err == nil:
		return nil
	case process.IsBeforeStartErr(err):
		return s.exitedEarly(proc)
	default:
		s.abort(proc)
		return err
	}
}

func (s *Supervisor) awaitHealthy(ctx context.Context, proc *process.Process) error {
	rctx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()

	attempt := 0
	op := func() error {
		select {
		case <-proc.Done():
			return backoff.Permanent(errChildExited)
		default:
		}
		attempt++
		return s.ping(rctx)
	}
	notify := func(err error, next time.Duration) {
		s.logger.Debug("backend not healthy yet", "attempt", attempt, "err", err, "retry_in", next)
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(s.cfg.ReadyInterval), rctx)
	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		return nil
	}

	// a child that died while the deadline expired is still an early exit
	select {
	case <-proc.Done():
		return s.exitedEarly(proc)
	default:
	}
	if ctx.Err() != nil {
		s.abort(proc)
		return ctx.Err()
	}
	s.abort(proc)
	metrics.IncBackendStartFailure("not_ready")
	return fmt.Errorf("%w: no healthy response from %s within %s", ErrNotReady, s.cfg.HealthURL, s.cfg.ReadyTimeout)
}

func (s *Supervisor) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.HealthURL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

func (s *Supervisor) exitedEarly(proc *process.Process) error {
	<-proc.Done()
	stdout, stderr := proc.Output()
	metrics.IncBackendStartFailure("exited")
	return &ExitedEarlyError{Stdout: stdout, Stderr: stderr, Err: proc.Snapshot().ExitErr}
}

func (s *Supervisor) abort(proc *process.Process) {
	if err := proc.Stop(s.cfg.StopTimeout); err != nil {
		s.logger.Warn("stop backend after failed start", "pid", proc.PID(), "err", err)
	}
}

// Run blocks until ctx is cancelled or the backend exits on its own. On
// cancellation the backend is stopped and Run returns the result of Stop.
// Otherwise it returns the backend's exit error, nil for a clean exit.
func (s *Supervisor) Run(ctx context.Context) error {
	proc := s.Process()
	if proc == nil {
		return process.ErrNotStarted
	}
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down backend", "pid", proc.PID())
		return s.Stop()
	case <-proc.Done():
		st := proc.Snapshot()
		metrics.IncBackendStop("exited")
		s.logger.Warn("backend exited", "pid", st.PID, "code", st.ExitCode())
		if st.ExitErr != nil {
			return fmt.Errorf("backend exited: %w", st.ExitErr)
		}
		return nil
	}
}

// Stop terminates the backend, escalating to a kill after the stop timeout.
// It is a no-op before Start or after the backend has exited.
func (s *Supervisor) Stop() error {
	proc := s.Process()
	if proc == nil {
		return nil
	}
	select {
	case <-proc.Done():
		return nil
	default:
	}
	err := proc.Stop(s.cfg.StopTimeout)
	mode := "graceful"
	if proc.Snapshot().Killed {
		mode = "killed"
	}
	metrics.IncBackendStop(mode)
	if err != nil {
		return fmt.Errorf("stop backend: %w", err)
	}
	s.logger.Info("backend stopped", "mode", mode)
	return nil
}

// FindPython returns the virtualenv interpreter inside dir, trying each of
// venvDirs with the Windows layout first, or "python" to use PATH.
func FindPython(fs afero.Fs, dir string, venvDirs []string) string {
	for _, venv := range venvDirs {
		for _, rel := range []string{filepath.Join("Scripts", "python.exe"), filepath.Join("bin", "python")} {
			p := filepath.Join(dir, venv, rel)
			if ok, err := afero.Exists(fs, p); err == nil && ok {
				return p
			}
		}
	}
	return "python"
}

// UvicornArgs returns the interpreter arguments that serve app with uvicorn.
func UvicornArgs(app, host string, port int, reload bool) []string {
	args := []string{"-m", "uvicorn", app}
	if reload {
		args = append(args, "--reload")
	}
	return append(args, "--host", host, "--port", strconv.Itoa(port))
}
