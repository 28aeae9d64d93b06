package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/loykin/medassist/internal/config"
	"github.com/loykin/medassist/internal/launcher"
	"github.com/loykin/medassist/internal/metrics"
	"github.com/loykin/medassist/internal/mockbackend"
	"github.com/loykin/medassist/internal/preflight"
	"github.com/loykin/medassist/internal/probe"
	"github.com/loykin/medassist/internal/ui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
)

// exitError carries a specific exit code through cobra. A nil err means the
// reason was already printed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return "exit status " + strconv.Itoa(e.code)
}

func (e *exitError) Unwrap() error { return e.err }

// command holds the dependencies of the subcommands so tests can replace them.
type command struct {
	stdout io.Writer
	stderr io.Writer
	fs     afero.Fs    // nil means the OS filesystem
	open   ui.OpenFunc // nil means the OS browser
}

func (c command) loadConfig(global *GlobalFlags) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(global.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	if global.LogLevel != "" {
		cfg.Log.Level = global.LogLevel
	}
	return cfg, cfg.Log.Logger().New(c.stderr), nil
}

func (c command) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.stdout, format, args...)
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// Start runs preflight, launches the backend, opens the UI and supervises the
// backend until ctx is cancelled or a termination signal arrives.
func (c command) Start(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signalContext(ctx)
	defer stop()

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	cfg.Root = root
	line := strings.Repeat("=", 40)
	c.printf("MedAssistBot Startup\n%s\n", line)

	checker := preflight.New(c.fs, preflight.Layout{
		BackendDir: cfg.BackendDir(),
		EntryPoint: cfg.Backend.Entry,
		VenvDirs:   cfg.Backend.VenvDirs,
		EnvFile:    cfg.Backend.EnvFile,
	})
	if !checker.Run(c.stdout) {
		return &exitError{code: 1}
	}

	if cfg.Metrics.Listen != "" {
		shutdown, err := serveMetrics(cfg.Metrics.Listen, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	lc := launcher.Config{
		Dir:           cfg.BackendDir(),
		VenvDirs:      cfg.Backend.VenvDirs,
		App:           cfg.Backend.App,
		Host:          cfg.Backend.Host,
		Port:          cfg.Backend.Port,
		Reload:        cfg.Backend.Reload,
		Env:           cfg.Backend.Env,
		Command:       cfg.Backend.Command,
		ReadyTimeout:  cfg.Backend.ReadyTimeout,
		ReadyInterval: cfg.Backend.ReadyInterval,
		Grace:         cfg.Backend.Grace,
		StopTimeout:   cfg.Backend.StopTimeout,
		Log:           cfg.Log.Logger(),
	}
	if cfg.Backend.HealthPath != "" {
		lc.HealthURL = cfg.LocalURL() + cfg.Backend.HealthPath
	}
	sup := launcher.New(lc, c.fs, logger)

	c.printf("\nStarting MedAssistBot Backend...\n")
	if err := sup.Start(ctx); err != nil {
		var early *launcher.ExitedEarlyError
		switch {
		case errors.As(err, &early):
			c.printf("✗ Backend failed to start: %v\n", early)
			c.printf("   stdout: %s\n", early.Stdout)
			c.printf("   stderr: %s\n", early.Stderr)
		case ctx.Err() != nil:
			c.printf("\nStartup interrupted\n")
			return nil
		default:
			c.printf("✗ Error starting backend: %v\n", err)
		}
		c.printf("\n✗ Failed to start backend. Please check the error messages above.\n")
		return &exitError{code: 1}
	}

	base := "http://localhost:" + strconv.Itoa(cfg.Backend.Port)
	c.printf("✓ Backend server started successfully on %s\n", base)

	c.printf("\nOpening MedAssistBot UI...\n")
	opener := ui.New(cfg.UIDir(), c.open, logger)
	if cfg.UI.Open {
		opener.Open(c.stdout)
	} else {
		opener.List(c.stdout)
	}

	c.printf("\n%s\nMedAssistBot is now running!\n%s\n", line, line)
	c.printf("Backend API: %s\nAPI Docs: %s/docs\nHealth Check: %s%s\n", base, base, base, cfg.Backend.HealthPath)
	c.printf("\nTips:\n")
	c.printf("   - Use the chat interface to test the AI\n")
	c.printf("   - Check the dashboard for analytics\n")
	c.printf("   - Press Ctrl+C to stop the backend\n")
	c.printf("\nBackend is running... Press Ctrl+C to stop\n")

	err = sup.Run(ctx)
	if ctx.Err() != nil {
		c.printf("\n\nStopping MedAssistBot...\n")
		if err != nil {
			return &exitError{code: 1, err: err}
		}
		c.printf("✓ Backend stopped successfully\n")
		return nil
	}
	c.printf("\n✗ Backend stopped unexpectedly\n")
	if err != nil {
		return &exitError{code: 1, err: err}
	}
	return nil
}

// serveMetrics exposes /metrics on addr until the returned func is called.
func serveMetrics(addr string, logger *slog.Logger) (func(), error) {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// Probe runs the integration checks and maps the summary to an exit code.
func (c command) Probe(ctx context.Context, cfg *config.Config, strict bool, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signalContext(ctx)
	defer stop()

	if cfg.Metrics.Textfile != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}
	client := probe.New(probe.Config{BaseURL: cfg.ProbeBaseURL(), Timeout: cfg.Probe.Timeout, Logger: logger})
	sum := probe.NewRunner(client, probe.DefaultChecks(), c.stdout, logger).Run(ctx)

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
		}
	}
	switch {
	case sum.Halted:
		return &exitError{code: 1}
	case strict && !sum.Clean():
		return &exitError{code: 2}
	}
	return nil
}

// MockBackend serves the canned backend until ctx is cancelled or a
// termination signal arrives.
func (c command) MockBackend(ctx context.Context, f MockBackendFlags, logger *slog.Logger) error {
	ctx, stop := signalContext(ctx)
	defer stop()

	backend := mockbackend.New(mockbackend.Options{
		Model:             f.Model,
		Version:           f.Version,
		AnalyticsDisabled: f.AnalyticsDisabled,
	})
	srv := mockbackend.NewServer(f.Addr, backend)
	ln, err := net.Listen("tcp", f.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", f.Addr, err)
	}
	c.printf("Mock backend listening on http://%s\n", ln.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down mock backend")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
