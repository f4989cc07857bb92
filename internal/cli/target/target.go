// Package target implements the demo target service command.
package target

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"smoke/internal/cli"
	handlers "smoke/internal/http/handler"
	"smoke/internal/http/server"
	"smoke/internal/otel"
)

// Options are the flags of the target command.
type Options struct {
	*cli.Options

	Port     string
	FailRate float64
}

// NewCommand creates a new cobra.Command serving the demo target.
func NewCommand(globalOpts *cli.Options) *cobra.Command {
	opts := &Options{Options: globalOpts}

	cmd := &cobra.Command{
		Use:   "target",
		Short: "Serve a demo target with /health, /healthz and /metrics",
		Long: "Serve the service smoke tests are pointed at by default. GET /health answers {\"status\":\"ok\"}; " +
			"with a fail rate a share of requests is answered with 503 to exercise failing checks.",
		Example: `smoke target --port 8000 --fail-rate 0.1`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.ApplyTo(cmd.Flags())
			if err := opts.Validate(); err != nil {
				return err
			}
			ln, err := net.Listen("tcp", ":"+opts.Config.Target.Port)
			if err != nil {
				return err
			}
			return opts.Run(cmd.Context(), ln)
		},
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

// AddFlags adds the target flags to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Port, "port", "", "Listen port (TARGET_PORT)")
	fs.Float64Var(&o.FailRate, "fail-rate", 0, "Share of /health requests answered with 503 (SMOKE_TARGET_FAIL_RATE)")
}

// ApplyTo copies every flag set on the command line into the target config.
func (o *Options) ApplyTo(fs *pflag.FlagSet) {
	if fs.Changed("port") {
		o.Config.Target.Port = o.Port
	}
	if fs.Changed("fail-rate") {
		o.Config.Target.FailRate = o.FailRate
	}
}

// Validate rejects a fail rate outside [0,1].
func (o *Options) Validate() error {
	if r := o.Config.Target.FailRate; r < 0 || r > 1 {
		return errors.New("fail rate must be between 0 and 1")
	}
	return nil
}

// Run serves the target on ln until ctx is cancelled.
func (o *Options) Run(ctx context.Context, ln net.Listener) error {
	shutdownTracing, err := otel.Init(ctx, "smoke-target", o.Log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			o.Log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app, err := server.New("smoke-target", o.Log, reg)
	if err != nil {
		return err
	}
	handlers.RegisterTargetRoutes(app, handlers.TargetDeps{
		Gatherer: reg,
		FailRate: o.Config.Target.FailRate,
	})

	o.Log.Info("target configured", zap.Float64("fail_rate", o.Config.Target.FailRate))
	return server.ServeListener(ctx, app, ln, o.Log)
}
