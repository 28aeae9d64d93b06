package medassist

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loykin/medassist/internal/launcher"
	"github.com/loykin/medassist/internal/metrics"
	"github.com/loykin/medassist/internal/mockbackend"
	"github.com/loykin/medassist/internal/preflight"
	"github.com/loykin/medassist/internal/probe"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.

type LauncherConfig = launcher.Config

type ExitedEarlyError = launcher.ExitedEarlyError

var ErrNotReady = launcher.ErrNotReady

type Layout = preflight.Layout

type ProbeSummary = probe.Summary

type MockOptions = mockbackend.Options

// Launcher is a thin facade over the backend supervisor.
type Launcher struct{ inner *launcher.Supervisor }

// NewLauncher returns a launcher using the OS filesystem. A nil logger uses slog.Default.
func NewLauncher(cfg LauncherConfig, logger *slog.Logger) *Launcher {
	return &Launcher{inner: launcher.New(cfg, nil, logger)}
}

func (l *Launcher) Start(ctx context.Context) error { return l.inner.Start(ctx) }
func (l *Launcher) Run(ctx context.Context) error   { return l.inner.Run(ctx) }
func (l *Launcher) Stop() error                     { return l.inner.Stop() }

// PID returns the backend process id, 0 when it is not running under this launcher.
func (l *Launcher) PID() int {
	if p := l.inner.Process(); p != nil {
		return p.PID()
	}
	return 0
}

// DefaultLayout is the MedAssistBot project layout under root.
func DefaultLayout(root string) Layout { return preflight.DefaultLayout(root) }

// CheckRequirements prints the preflight report to w and reports whether the
// layout is ready for launching.
func CheckRequirements(layout Layout, w io.Writer) bool {
	return preflight.New(nil, layout).Run(w)
}

// RunProbes runs the integration checks against baseURL and prints the report to w.
// Zero values select the default base URL and per-request timeout.
func RunProbes(ctx context.Context, baseURL string, timeout time.Duration, w io.Writer) ProbeSummary {
	client := probe.New(probe.Config{BaseURL: baseURL, Timeout: timeout})
	return probe.NewRunner(client, probe.DefaultChecks(), w, nil).Run(ctx)
}

// MockBackendHandler returns the canned backend API as an http.Handler.
func MockBackendHandler(opts MockOptions) http.Handler {
	return mockbackend.New(opts).Handler()
}

// Metrics helpers

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
