// Package cli holds the options and wiring shared by the smoke subcommands.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"smoke/internal/config"
	"smoke/internal/logging"
)

const (
	// ExitThresholdsFailed is the exit code of a run whose thresholds were crossed.
	ExitThresholdsFailed = 99
	// ExitFailure is the exit code for setup errors and failed one-shot checks.
	ExitFailure = 1
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// IOStreams are the writers commands print to. Out carries results, ErrOut diagnostics.
type IOStreams struct {
	Out    io.Writer
	ErrOut io.Writer
}

// Options are the global options of every subcommand.
type Options struct {
	IOStreams

	// LogLevel and LogFormat override LOG_LEVEL and LOG_FORMAT when set.
	LogLevel  string
	LogFormat string

	// Config is loaded by Complete.
	Config *config.AppConfig
	// Log is built by Complete.
	Log *zap.Logger
}

// AddFlags adds the global flags to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.LogLevel, "log-level", "", "Log level (debug, info, warn, error). Defaults to LOG_LEVEL.")
	fs.StringVar(&o.LogFormat, "log-format", "", "Log format (json, console). Defaults to LOG_FORMAT.")
}

// Validate validates the global flags.
func (o *Options) Validate() error {
	switch o.LogFormat {
	case "", "json", "console":
		return nil
	default:
		return fmt.Errorf("unsupported log format %q", o.LogFormat)
	}
}

// Complete loads the configuration from the environment and builds the logger.
func (o *Options) Complete() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	o.Config = cfg
	o.Log = logger
	return nil
}
