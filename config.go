package termcast

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values, applied before environment and flag
// overrides are layered on top.
const (
	DefaultRows            = 24
	DefaultCols            = 80
	DefaultScrollback      = 1000
	DefaultVerboseInterval = 5 * time.Second
	DefaultListenAddr      = ":7681"
	DefaultShell           = "/bin/bash"
	DefaultLogLevel        = "info"
	DefaultCastPath        = "session.cast"
	DefaultHeartbeatPath   = "session.heartbeat"
)

// Config carries every tunable spec.md §6 names as a coordinator
// configuration parameter, plus the ambient fields a runnable process
// needs (listen address, shell, log level).
type Config struct {
	Rows            int
	Cols            int
	Scrollback      int
	VerboseLog      bool
	VerboseInterval time.Duration
	CastPath        string
	HeartbeatPath   string

	ListenAddr string
	Shell      string
	ShellArgs  []string
	LogLevel   string
}

// Option configures a Config during construction, mirroring the teacher's
// functional-options style (terminal.WithSize, terminal.WithScrollback).
type Option func(*Config)

// WithRows sets the initial row count. Values <= 0 are replaced with
// DefaultRows.
func WithRows(rows int) Option {
	if rows <= 0 {
		rows = DefaultRows
	}
	return func(c *Config) { c.Rows = rows }
}

// WithCols sets the initial column count. Values <= 0 are replaced with
// DefaultCols.
func WithCols(cols int) Option {
	if cols <= 0 {
		cols = DefaultCols
	}
	return func(c *Config) { c.Cols = cols }
}

// WithScrollback sets the backscroll line budget the trimmer preserves.
func WithScrollback(lines int) Option {
	return func(c *Config) { c.Scrollback = lines }
}

// WithVerboseLog enables the verbose telemetry accumulator described in
// spec.md §4.4, flushing at the given interval. An interval <= 0 is
// replaced with DefaultVerboseInterval.
func WithVerboseLog(interval time.Duration) Option {
	if interval <= 0 {
		interval = DefaultVerboseInterval
	}
	return func(c *Config) {
		c.VerboseLog = true
		c.VerboseInterval = interval
	}
}

// WithCastPath sets the transcript file target.
func WithCastPath(path string) Option {
	return func(c *Config) { c.CastPath = path }
}

// WithHeartbeatPath sets the heartbeat sidecar file target.
func WithHeartbeatPath(path string) Option {
	return func(c *Config) { c.HeartbeatPath = path }
}

// WithShell sets the child process spawned inside the PTY.
func WithShell(name string, args ...string) Option {
	return func(c *Config) {
		c.Shell = name
		c.ShellArgs = args
	}
}

// NewConfig returns a Config seeded with defaults and then opts, in order.
func NewConfig(opts ...Option) Config {
	c := Config{
		Rows:            DefaultRows,
		Cols:            DefaultCols,
		Scrollback:      DefaultScrollback,
		VerboseInterval: DefaultVerboseInterval,
		CastPath:        DefaultCastPath,
		HeartbeatPath:   DefaultHeartbeatPath,
		ListenAddr:      DefaultListenAddr,
		Shell:           DefaultShell,
		LogLevel:        DefaultLogLevel,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LoadConfig builds a Config from layered sources via viper: built-in
// defaults, a TERMCAST_-prefixed environment variable for every field
// except ShellArgs (which only WithShell sets), and
// finally opts applied on top (so callers — typically cobra flag bindings
// in cmd/termcastd — always have the last word). This mirrors the layered
// env+flags+defaults pattern the example pack reaches for via viper
// whenever a repo's configuration has more than a couple of knobs.
func LoadConfig(opts ...Option) Config {
	v := viper.New()
	v.SetEnvPrefix("TERMCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("rows", DefaultRows)
	v.SetDefault("cols", DefaultCols)
	v.SetDefault("scrollback", DefaultScrollback)
	v.SetDefault("verbose_log", false)
	v.SetDefault("verbose_interval", DefaultVerboseInterval)
	v.SetDefault("cast_path", DefaultCastPath)
	v.SetDefault("heartbeat_path", DefaultHeartbeatPath)
	v.SetDefault("listen_addr", DefaultListenAddr)
	v.SetDefault("shell", DefaultShell)
	v.SetDefault("log_level", DefaultLogLevel)

	c := Config{
		Rows:            v.GetInt("rows"),
		Cols:            v.GetInt("cols"),
		Scrollback:      v.GetInt("scrollback"),
		VerboseLog:      v.GetBool("verbose_log"),
		VerboseInterval: v.GetDuration("verbose_interval"),
		CastPath:        v.GetString("cast_path"),
		HeartbeatPath:   v.GetString("heartbeat_path"),
		ListenAddr:      v.GetString("listen_addr"),
		Shell:           v.GetString("shell"),
		LogLevel:        v.GetString("log_level"),
	}

	for _, opt := range opts {
		opt(&c)
	}
	return c
}
