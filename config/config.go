// Package config loads session settings from YAML files and RTCORE_*
// environment variables on top of the compile-time defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"rtcore/constants"
	"rtcore/stability"
)

// EnvPrefix namespaces environment overrides: stability.window is read
// from RTCORE_STABILITY_WINDOW.
const EnvPrefix = "RTCORE"

// Stability mirrors stability.Config with file-friendly keys.
type Stability struct {
	Window              int           `mapstructure:"window"`
	AcceptableDeviation time.Duration `mapstructure:"acceptable_deviation"`
	ThresholdPercent    int           `mapstructure:"threshold_percent"`
}

// Config is everything a session and the server binary need.
type Config struct {
	Priority          int           `mapstructure:"priority"`
	Period            time.Duration `mapstructure:"period"`
	CPU               int           `mapstructure:"cpu"`
	RequireMemoryLock bool          `mapstructure:"require_memory_lock"`

	// Simulate runs the RT loop without SCHED_FIFO or mlockall, for hosts
	// lacking CAP_SYS_NICE / CAP_IPC_LOCK.
	Simulate bool `mapstructure:"simulate"`

	Stability Stability `mapstructure:"stability"`

	CommandQueueDepth  int `mapstructure:"command_queue_depth"`
	ResponseQueueDepth int `mapstructure:"response_queue_depth"`

	StabilizePoll     time.Duration `mapstructure:"stabilize_poll"`
	StabilizeMaxPolls int           `mapstructure:"stabilize_max_polls"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace"`
	RunFor            time.Duration `mapstructure:"run_for"`

	LogLevel string `mapstructure:"log_level"`

	// MetricsFile, when set, receives the Prometheus text exposition of
	// the session metrics (node_exporter textfile collector format).
	MetricsFile string `mapstructure:"metrics_file"`
}

// Default returns the configuration used when no file or env key is set.
func Default() Config {
	return Config{
		Priority: constants.DefaultPriority,
		Period:   constants.DefaultPeriod,
		CPU:      constants.NoCPU,
		Stability: Stability{
			Window:              constants.JitterWindow,
			AcceptableDeviation: constants.AcceptableDeviation,
			ThresholdPercent:    constants.ThresholdPercent,
		},
		CommandQueueDepth:  constants.CommandQueueDepth,
		ResponseQueueDepth: constants.ResponseQueueDepth,
		StabilizePoll:      constants.StabilizePoll,
		StabilizeMaxPolls:  constants.StabilizeMaxPolls,
		ShutdownGrace:      constants.ShutdownGrace,
		RunFor:             constants.DefaultRunFor,
		LogLevel:           "info",
	}
}

// StabilityConfig converts to the monitor's configuration.
func (c Config) StabilityConfig() stability.Config {
	return stability.Config{
		Window:              c.Stability.Window,
		AcceptableDeviation: c.Stability.AcceptableDeviation,
		ThresholdPercent:    c.Stability.ThresholdPercent,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var err error
	if c.Priority < constants.MinPriority || c.Priority > constants.MaxPriority {
		err = multierr.Append(err, fmt.Errorf("priority must be in [%d, %d], got %d",
			constants.MinPriority, constants.MaxPriority, c.Priority))
	}
	if c.Period <= 0 {
		err = multierr.Append(err, fmt.Errorf("period must be > 0, got %s", c.Period))
	}
	if c.CPU < constants.NoCPU {
		err = multierr.Append(err, fmt.Errorf("cpu must be >= %d, got %d", constants.NoCPU, c.CPU))
	}
	err = multierr.Append(err, c.StabilityConfig().Validate())
	if c.CommandQueueDepth < 1 {
		err = multierr.Append(err, fmt.Errorf("command_queue_depth must be >= 1, got %d", c.CommandQueueDepth))
	}
	if c.ResponseQueueDepth < 1 {
		err = multierr.Append(err, fmt.Errorf("response_queue_depth must be >= 1, got %d", c.ResponseQueueDepth))
	}
	if c.StabilizePoll <= 0 {
		err = multierr.Append(err, fmt.Errorf("stabilize_poll must be > 0, got %s", c.StabilizePoll))
	}
	if c.StabilizeMaxPolls < 1 {
		err = multierr.Append(err, fmt.Errorf("stabilize_max_polls must be >= 1, got %d", c.StabilizeMaxPolls))
	}
	if c.ShutdownGrace <= 0 {
		err = multierr.Append(err, fmt.Errorf("shutdown_grace must be > 0, got %s", c.ShutdownGrace))
	}
	if c.RunFor < 0 {
		err = multierr.Append(err, fmt.Errorf("run_for must be >= 0, got %s", c.RunFor))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	return err
}

// ============================================================================
// LOADER
// ============================================================================

// Loader owns the viper instance so a loaded configuration can be watched.
type Loader struct {
	v      *viper.Viper
	logger *zap.Logger
	files  []string
}

// NewLoader returns a loader logging to log (nil means no logging).
func NewLoader(log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Loader{v: viper.New(), logger: log}
	l.setupViper()
	return l
}

// Load is NewLoader(nil).Load(paths...).
func Load(paths ...string) (Config, error) {
	return NewLoader(nil).Load(paths...)
}

func (l *Loader) setupViper() {
	l.v.SetConfigType("yaml")
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	d := Default()
	l.v.SetDefault("priority", d.Priority)
	l.v.SetDefault("period", d.Period)
	l.v.SetDefault("cpu", d.CPU)
	l.v.SetDefault("require_memory_lock", d.RequireMemoryLock)
	l.v.SetDefault("simulate", d.Simulate)
	l.v.SetDefault("stability.window", d.Stability.Window)
	l.v.SetDefault("stability.acceptable_deviation", d.Stability.AcceptableDeviation)
	l.v.SetDefault("stability.threshold_percent", d.Stability.ThresholdPercent)
	l.v.SetDefault("command_queue_depth", d.CommandQueueDepth)
	l.v.SetDefault("response_queue_depth", d.ResponseQueueDepth)
	l.v.SetDefault("stabilize_poll", d.StabilizePoll)
	l.v.SetDefault("stabilize_max_polls", d.StabilizeMaxPolls)
	l.v.SetDefault("shutdown_grace", d.ShutdownGrace)
	l.v.SetDefault("run_for", d.RunFor)
	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("metrics_file", d.MetricsFile)
}

// Load merges the existing files among paths in order (later files win),
// applies environment overrides and validates the result. Missing files
// are skipped; a file that exists but cannot be parsed is an error.
func (l *Loader) Load(paths ...string) (Config, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			l.logger.Debug("config file not found, skipping", zap.String("path", path))
			continue
		}
		l.v.SetConfigFile(path)
		if err := l.v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
		l.files = append(l.files, path)
	}

	if len(l.files) == 0 {
		l.logger.Info("no config files loaded, using defaults and environment")
	} else {
		l.logger.Info("config files loaded", zap.Strings("files", l.files))
	}

	return l.decode()
}

func (l *Loader) decode() (Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

// Watch re-reads the last loaded file whenever it changes and hands each
// valid result to onChange. Invalid edits are logged and ignored. It
// reports false when no file was loaded.
func (l *Loader) Watch(onChange func(Config)) bool {
	if len(l.files) == 0 {
		return false
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			l.logger.Warn("config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		l.logger.Info("config reloaded", zap.String("file", e.Name))
		onChange(cfg)
	})
	l.v.WatchConfig()
	return true
}

// ============================================================================
// FLAGS
// ============================================================================

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"priority":     "priority",
	"cpu":          "cpu",
	"simulate":     "simulate",
	"run-for":      "run_for",
	"log-level":    "log_level",
	"metrics-file": "metrics_file",
}

// Flags returns the command-line flags of the server binary. Besides the
// bound settings it carries --config, the list of YAML files to merge.
func Flags(name string) *pflag.FlagSet {
	d := Default()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringSlice("config", nil, "YAML config files to merge, later files win")
	fs.Int("priority", d.Priority, "SCHED_FIFO priority of the RT thread (1-99)")
	fs.Int("cpu", d.CPU, "pin the RT thread to this CPU (-1 disables pinning)")
	fs.Bool("simulate", d.Simulate, "run without SCHED_FIFO and mlockall")
	fs.Duration("run-for", d.RunFor, "supervised run before shutdown (0 runs until a signal)")
	fs.String("log-level", d.LogLevel, "debug, info, warn or error")
	fs.String("metrics-file", d.MetricsFile, "write Prometheus metrics to this file")
	return fs
}

// BindFlags makes every flag the user set override files and environment.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("config: bind flag %s: %w", name, err)
		}
	}
	return nil
}
