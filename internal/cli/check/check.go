// Package check implements the one-shot smoke check command.
package check

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"smoke/internal/cli"
	"smoke/internal/config"
	"smoke/internal/probe"
)

// ErrCheckFailed is returned when a check of the single probe fails.
var ErrCheckFailed = errors.New("health check failed")

// Options are the flags of the check command.
type Options struct {
	*cli.Options

	TargetURL      string
	ExpectedStatus int
	Timeout        time.Duration
}

// NewCommand creates a new cobra.Command probing the target once.
func NewCommand(globalOpts *cli.Options) *cobra.Command {
	opts := &Options{Options: globalOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe the target once and exit non-zero when the check fails",
		Long: "Probe the target once with the configured method and expected status. " +
			"The exit code is 0 when every check passed and 1 otherwise, so the command can serve as a container health check.",
		Example: `smoke check --url http://localhost:8000/health`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.ApplyTo(cmd.Flags(), &opts.Config.Scenario)
			if err := opts.Config.Scenario.Validate(); err != nil {
				return err
			}
			return opts.Run(cmd.Context())
		},
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

// AddFlags adds the check flags to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.TargetURL, "url", "", "Target URL (SMOKE_TARGET_URL)")
	fs.IntVar(&o.ExpectedStatus, "expect-status", 0, "Expected status code (SMOKE_EXPECTED_STATUS)")
	fs.DurationVar(&o.Timeout, "timeout", 0, "Request timeout (SMOKE_REQUEST_TIMEOUT)")
}

// ApplyTo copies every flag set on the command line into sc.
func (o *Options) ApplyTo(fs *pflag.FlagSet, sc *config.ScenarioConfig) {
	if fs.Changed("url") {
		sc.TargetURL = o.TargetURL
	}
	if fs.Changed("expect-status") {
		sc.ExpectedStatus = o.ExpectedStatus
	}
	if fs.Changed("timeout") {
		sc.RequestTimeout = o.Timeout
	}
}

// Run performs one probe and prints each check outcome.
func (o *Options) Run(ctx context.Context) error {
	sc := o.Config.Scenario

	client := probe.NewHTTPClient(sc.RequestTimeout, 1)
	defer client.CloseIdleConnections()

	res := probe.New(client, sc.Method, sc.TargetURL).Do(ctx)
	outcomes := probe.Evaluate(res, []probe.Check{probe.StatusCheck(sc.ExpectedStatus)})

	for _, oc := range outcomes {
		mark := "✓"
		if !oc.Passed {
			mark = "✗"
		}
		fmt.Fprintf(o.Out, "%s %s\n", mark, oc.Name)
	}
	if res.Err != nil {
		fmt.Fprintf(o.Out, "  error: %v\n", res.Err)
	} else {
		fmt.Fprintf(o.Out, "  status %d in %s\n", res.Status, res.Duration.Round(time.Microsecond))
	}

	if !probe.AllPassed(outcomes) {
		return &cli.ExitError{Code: cli.ExitFailure, Err: ErrCheckFailed}
	}
	return nil
}
