package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := buildRoot(command{stdout: stdout, stderr: stderr})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.err != nil {
				_, _ = fmt.Fprintln(stderr, ee.err)
			}
			return ee.code
		}
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

// buildRoot creates the root command and its subcommands
func buildRoot(c command) *cobra.Command {
	globalFlags := &GlobalFlags{}
	startFlags := &StartFlags{}
	probeFlags := &ProbeFlags{}
	mockFlags := &MockBackendFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createStartCommand(c, globalFlags, startFlags),
		createProbeCommand(c, globalFlags, probeFlags),
		createMockBackendCommand(c, globalFlags, mockFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "medassist",
		Short: "MedAssistBot launcher and integration prober",
		Long: `medassist starts the MedAssistBot backend under supervision, opens the UI,
and probes a running backend end to end.

Examples:
  medassist start                        # run from the MedAssistBot root directory
  medassist start --root=/srv/medassist --no-browser
  medassist probe --base-url=http://localhost:8000
  medassist mock-backend --addr=:8000    # canned backend for local testing`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level: debug|info|warn|error")
	return root
}

func createStartCommand(c command, global *GlobalFlags, f *StartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Check requirements, start the backend and open the UI",
		Long: `Verify the project layout, launch the backend with uvicorn, wait until its
health endpoint answers, open the chat UI and keep the backend running until
interrupted (Ctrl+C).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.loadConfig(global)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			return c.Start(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&f.Root, "root", "", "MedAssistBot root directory (default: current directory)")
	cmd.Flags().StringVar(&f.Host, "host", "", "backend bind address")
	cmd.Flags().IntVar(&f.Port, "port", 0, "backend port")
	cmd.Flags().BoolVar(&f.NoReload, "no-reload", false, "run uvicorn without --reload")
	cmd.Flags().BoolVar(&f.NoBrowser, "no-browser", false, "print UI URLs without opening a browser")
	cmd.Flags().DurationVar(&f.ReadyTimeout, "ready-timeout", 0, "how long to wait for the backend health check")
	cmd.Flags().StringVar(&f.LogDir, "log-dir", "", "write rotated backend stdout/stderr logs to this directory")
	cmd.Flags().StringVar(&f.MetricsListen, "metrics-listen", "", "serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func createProbeCommand(c command, global *GlobalFlags, f *ProbeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Run the integration checks against a running backend",
		Long: `Run the six integration checks (health, features, analytics and three chat
scenarios) in order and print a report. A failed health check stops the run.

Exit codes:
  0  the suite ran to completion
  1  the backend is unreachable or unhealthy, or the run was interrupted
  2  --strict was given and a check failed or warned`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.loadConfig(global)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			return c.Probe(cmd.Context(), cfg, f.Strict, logger)
		},
	}
	cmd.Flags().StringVar(&f.BaseURL, "base-url", "", "backend base URL (default http://localhost:<backend.port>)")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 0, "per-request timeout")
	cmd.Flags().BoolVar(&f.Strict, "strict", false, "exit non-zero when any check fails or warns")
	cmd.Flags().StringVar(&f.MetricsTextfile, "metrics-textfile", "", "write probe metrics to this node_exporter textfile")
	return cmd
}

func createMockBackendCommand(c command, global *GlobalFlags, f *MockBackendFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Serve a canned MedAssistBot backend API",
		Long: `Serve /health, /api/features, /api/analytics and /api/chat with canned
responses so the launcher and the prober can be exercised without the real backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.loadConfig(global)
			if err != nil {
				return err
			}
			if f.Addr == "" {
				f.Addr = fmt.Sprintf(":%d", cfg.Backend.Port)
			}
			return c.MockBackend(cmd.Context(), *f, logger)
		},
	}
	cmd.Flags().StringVar(&f.Addr, "addr", "", "listen address (default :<backend.port>)")
	cmd.Flags().StringVar(&f.Model, "model", "", "model name reported by /health")
	cmd.Flags().StringVar(&f.Version, "version", "", "version reported by /health")
	cmd.Flags().BoolVar(&f.AnalyticsDisabled, "analytics-disabled", false, "answer /api/analytics with success=false")
	return cmd
}
