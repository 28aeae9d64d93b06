package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/medassist/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. MEDASSIST_BACKEND_PORT.
const EnvPrefix = "MEDASSIST"

// Config is the full launcher and prober configuration.
type Config struct {
	Root    string        `toml:"root" mapstructure:"root"`
	Backend BackendConfig `toml:"backend" mapstructure:"backend"`
	UI      UIConfig      `toml:"ui" mapstructure:"ui"`
	Probe   ProbeConfig   `toml:"probe" mapstructure:"probe"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
}

type BackendConfig struct {
	Dir           string        `toml:"dir" mapstructure:"dir"`
	Entry         string        `toml:"entry" mapstructure:"entry"`
	EnvFile       string        `toml:"env_file" mapstructure:"env_file"`
	VenvDirs      []string      `toml:"venv_dirs" mapstructure:"venv_dirs"`
	App           string        `toml:"app" mapstructure:"app"`
	Host          string        `toml:"host" mapstructure:"host"`
	Port          int           `toml:"port" mapstructure:"port"`
	Reload        bool          `toml:"reload" mapstructure:"reload"`
	Env           []string      `toml:"env" mapstructure:"env"`
	Command       []string      `toml:"command" mapstructure:"command"` // replaces the uvicorn command when set
	HealthPath    string        `toml:"health_path" mapstructure:"health_path"`
	ReadyTimeout  time.Duration `toml:"ready_timeout" mapstructure:"ready_timeout"`
	ReadyInterval time.Duration `toml:"ready_interval" mapstructure:"ready_interval"`
	Grace         time.Duration `toml:"grace" mapstructure:"grace"`
	StopTimeout   time.Duration `toml:"stop_timeout" mapstructure:"stop_timeout"`
}

type UIConfig struct {
	Dir  string `toml:"dir" mapstructure:"dir"`
	Open bool   `toml:"open" mapstructure:"open"`
}

type ProbeConfig struct {
	BaseURL string        `toml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Color      bool   `toml:"color" mapstructure:"color"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type MetricsConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	Textfile string `toml:"textfile" mapstructure:"textfile"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("backend.dir", "Backend")
	v.SetDefault("backend.entry", "app.py")
	v.SetDefault("backend.env_file", ".env")
	v.SetDefault("backend.venv_dirs", []string{"venv", ".venv"})
	v.SetDefault("backend.app", "app:app")
	v.SetDefault("backend.host", "0.0.0.0")
	v.SetDefault("backend.port", 8000)
	v.SetDefault("backend.reload", true)
	v.SetDefault("backend.env", []string{})
	v.SetDefault("backend.command", []string{})
	v.SetDefault("backend.health_path", "/health")
	v.SetDefault("backend.ready_timeout", 30*time.Second)
	v.SetDefault("backend.ready_interval", 250*time.Millisecond)
	v.SetDefault("backend.grace", 3*time.Second)
	v.SetDefault("backend.stop_timeout", 10*time.Second)
	v.SetDefault("ui.dir", "UI")
	v.SetDefault("ui.open", true)
	v.SetDefault("probe.base_url", "")
	v.SetDefault("probe.timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.color", false)
	v.SetDefault("log.dir", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.textfile", "")
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// defaults are static; failing here is a programming error
		panic(err)
	}
	return cfg
}

// Load builds the configuration from defaults, the optional TOML file at
// path and MEDASSIST_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and URL syntax.
func (c *Config) Validate() error {
	var errs []error
	b := c.Backend
	if b.Port < 1 || b.Port > 65535 {
		errs = append(errs, fmt.Errorf("backend.port %d out of range", b.Port))
	}
	if strings.TrimSpace(b.App) == "" {
		errs = append(errs, errors.New("backend.app is required"))
	}
	if b.HealthPath != "" && !strings.HasPrefix(b.HealthPath, "/") {
		errs = append(errs, fmt.Errorf("backend.health_path %q must start with '/'", b.HealthPath))
	}
	if b.ReadyTimeout <= 0 || b.ReadyInterval <= 0 {
		errs = append(errs, errors.New("backend.ready_timeout and backend.ready_interval must be positive"))
	}
	if b.Grace < 0 || b.StopTimeout <= 0 {
		errs = append(errs, errors.New("backend.grace must not be negative and backend.stop_timeout must be positive"))
	}
	if len(b.VenvDirs) == 0 {
		errs = append(errs, errors.New("backend.venv_dirs must name at least one directory"))
	}
	for i, kv := range b.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || strings.TrimSpace(k) == "" {
			errs = append(errs, fmt.Errorf("backend.env[%d] %q must be KEY=VALUE", i, kv))
		}
	}
	if c.Probe.Timeout <= 0 {
		errs = append(errs, errors.New("probe.timeout must be positive"))
	}
	if c.Probe.BaseURL != "" {
		if u, err := url.Parse(c.Probe.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("probe.base_url %q is not an absolute URL", c.Probe.BaseURL))
		}
	}
	return errors.Join(errs...)
}

// BackendDir resolves the backend directory against Root.
func (c *Config) BackendDir() string { return c.resolve(c.Backend.Dir) }

// UIDir resolves the UI directory against Root.
func (c *Config) UIDir() string { return c.resolve(c.UI.Dir) }

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// LocalURL is the URL the launcher uses to reach the backend it started.
// Wildcard bind addresses are reached through loopback.
func (c *Config) LocalURL() string {
	host := c.Backend.Host
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(c.Backend.Port))
}

// ProbeBaseURL is probe.base_url, or http://localhost:<backend.port> when unset.
func (c *Config) ProbeBaseURL() string {
	if c.Probe.BaseURL != "" {
		return strings.TrimRight(c.Probe.BaseURL, "/")
	}
	return "http://" + net.JoinHostPort("localhost", strconv.Itoa(c.Backend.Port))
}

// Logger converts the log section to logger.Config.
func (l LogConfig) Logger() logger.Config {
	return logger.Config{
		Level:      l.Level,
		Color:      l.Color,
		Dir:        l.Dir,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	}
}
