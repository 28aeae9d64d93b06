package main

import (
	"time"

	"github.com/loykin/medassist/internal/config"
	"github.com/spf13/cobra"
)

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
}

type StartFlags struct {
	Root          string
	Host          string
	Port          int
	NoReload      bool
	NoBrowser     bool
	ReadyTimeout  time.Duration
	LogDir        string
	MetricsListen string
}

// apply overrides cfg with the flags the user actually set.
func (f *StartFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("root") {
		cfg.Root = f.Root
	}
	if fl.Changed("host") {
		cfg.Backend.Host = f.Host
	}
	if fl.Changed("port") {
		cfg.Backend.Port = f.Port
	}
	if fl.Changed("no-reload") {
		cfg.Backend.Reload = !f.NoReload
	}
	if fl.Changed("no-browser") {
		cfg.UI.Open = !f.NoBrowser
	}
	if fl.Changed("ready-timeout") {
		cfg.Backend.ReadyTimeout = f.ReadyTimeout
	}
	if fl.Changed("log-dir") {
		cfg.Log.Dir = f.LogDir
	}
	if fl.Changed("metrics-listen") {
		cfg.Metrics.Listen = f.MetricsListen
	}
}

type ProbeFlags struct {
	BaseURL         string
	Timeout         time.Duration
	Strict          bool
	MetricsTextfile string
}

func (f *ProbeFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("base-url") {
		cfg.Probe.BaseURL = f.BaseURL
	}
	if fl.Changed("timeout") {
		cfg.Probe.Timeout = f.Timeout
	}
	if fl.Changed("metrics-textfile") {
		cfg.Metrics.Textfile = f.MetricsTextfile
	}
}

type MockBackendFlags struct {
	Addr              string
	Model             string
	Version           string
	AnalyticsDisabled bool
}
