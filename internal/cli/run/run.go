// Package run implements the smoke run command.
package run

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"smoke/internal/cli"
	"smoke/internal/config"
	handlers "smoke/internal/http/handler"
	"smoke/internal/http/server"
	"smoke/internal/metrics"
	"smoke/internal/model"
	"smoke/internal/otel"
	"smoke/internal/probe"
	"smoke/internal/runner"
	"smoke/internal/summary"
)

// ErrThresholdsCrossed is returned when the check pass rate is below the threshold.
var ErrThresholdsCrossed = errors.New("thresholds on metrics 'checks' have been crossed")

// publishTimeout bounds report publishing, which also runs after an interrupted test.
const publishTimeout = 30 * time.Second

// Options are the flags of the run command. Set flags override the environment.
type Options struct {
	*cli.Options

	TargetURL      string
	Method         string
	ExpectedStatus int
	VUs            int
	Duration       time.Duration
	Sleep          time.Duration
	GracefulStop   time.Duration
	RequestTimeout time.Duration
	MaxRPS         float64
	Threshold      float64
	SummaryExport  string
	StatusAddr     string
	NoPublish      bool
}

// NewCommand creates a new cobra.Command for running a smoke test.
func NewCommand(globalOpts *cli.Options) *cobra.Command {
	opts := &Options{Options: globalOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a smoke test against a health endpoint",
		Long: "Run a smoke test: a fixed number of virtual users request the target for a fixed duration, " +
			"each checking the response status and pausing between iterations. An end-of-test summary is printed.",
		Example: `# Run the default scenario (10 VUs for 30s against http://localhost:8000/health)
smoke run

# Run 3 VUs for a minute and fail below a 95% check pass rate
smoke run --url https://api.example.com/healthz --vus 3 --duration 1m --threshold 0.95`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.ApplyTo(cmd.Flags(), opts.Config)
			if err := opts.Config.Scenario.Validate(); err != nil {
				return err
			}
			return opts.Run(cmd.Context())
		},
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

// AddFlags adds the run flags to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.TargetURL, "url", "", "Target URL probed by every iteration (SMOKE_TARGET_URL)")
	fs.StringVar(&o.Method, "method", "", "HTTP method: GET, HEAD or OPTIONS (SMOKE_METHOD)")
	fs.IntVar(&o.ExpectedStatus, "expect-status", 0, "Status code the check expects (SMOKE_EXPECTED_STATUS)")
	fs.IntVar(&o.VUs, "vus", 0, "Number of virtual users (SMOKE_VUS)")
	fs.DurationVar(&o.Duration, "duration", 0, "Test duration (SMOKE_DURATION)")
	fs.DurationVar(&o.Sleep, "sleep", 0, "Pause after every iteration (SMOKE_SLEEP)")
	fs.DurationVar(&o.GracefulStop, "graceful-stop", 0, "Time in-flight iterations get after the duration (SMOKE_GRACEFUL_STOP)")
	fs.DurationVar(&o.RequestTimeout, "timeout", 0, "Per-request timeout (SMOKE_REQUEST_TIMEOUT)")
	fs.Float64Var(&o.MaxRPS, "max-rps", 0, "Cap on requests per second across all VUs, 0 for none (SMOKE_MAX_RPS)")
	fs.Float64Var(&o.Threshold, "threshold", 0, "Minimum check pass rate in [0,1], 0 to disable (SMOKE_CHECK_THRESHOLD)")
	fs.StringVar(&o.SummaryExport, "summary-export", "", "Write the JSON summary to this file (SMOKE_SUMMARY_EXPORT)")
	fs.StringVar(&o.StatusAddr, "status-addr", "", "Serve /healthz, /metrics and /status on this address (SMOKE_STATUS_ADDR)")
	fs.BoolVar(&o.NoPublish, "no-publish", false, "Do not upload the report, save the run or emit events")
}

// ApplyTo copies every flag set on the command line into cfg.
func (o *Options) ApplyTo(fs *pflag.FlagSet, cfg *config.AppConfig) {
	sc := &cfg.Scenario
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("url", func() { sc.TargetURL = o.TargetURL })
	set("method", func() { sc.Method = o.Method })
	set("expect-status", func() { sc.ExpectedStatus = o.ExpectedStatus })
	set("vus", func() { sc.VUs = o.VUs })
	set("duration", func() { sc.Duration = o.Duration })
	set("sleep", func() { sc.Sleep = o.Sleep })
	set("graceful-stop", func() { sc.GracefulStop = o.GracefulStop })
	set("timeout", func() { sc.RequestTimeout = o.RequestTimeout })
	set("max-rps", func() { sc.MaxRPS = o.MaxRPS })
	set("threshold", func() { sc.CheckThreshold = o.Threshold })
	set("summary-export", func() { sc.SummaryExport = o.SummaryExport })
	set("status-addr", func() { cfg.Status.Addr = o.StatusAddr })
}

// Run executes the test, prints the summary and publishes the report.
func (o *Options) Run(ctx context.Context) error {
	cfg := o.Config
	sc := cfg.Scenario
	log := o.Log

	shutdownTracing, err := otel.Init(ctx, "smoke", log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	var backends *cli.Backends
	if !o.NoPublish {
		backends, err = cli.OpenBackends(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := backends.Close(); err != nil {
				log.Warn("close backends", zap.Error(err))
			}
		}()
		if !backends.Publishes() {
			log.Debug("no report backend configured, skipping publish")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mem := metrics.NewInMemory()
	promRec, err := metrics.NewPrometheus(reg)
	if err != nil {
		return err
	}
	recorder := metrics.Multi(mem, promRec)

	if cfg.Status.Addr != "" {
		stop, err := o.startStatusServer(ctx, reg, mem, backends)
		if err != nil {
			return err
		}
		defer stop()
	}

	client := probe.NewHTTPClient(sc.RequestTimeout, sc.VUs)
	defer client.CloseIdleConnections()
	scenario := probe.NewHealthCheck(
		probe.New(client, sc.Method, sc.TargetURL),
		[]probe.Check{probe.StatusCheck(sc.ExpectedStatus)},
		recorder,
		log,
	)

	var limiter *rate.Limiter
	if sc.MaxRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(sc.MaxRPS), 1)
	}

	r, err := runner.New(runner.Options{
		VUs:          sc.VUs,
		Duration:     sc.Duration,
		Sleep:        sc.Sleep,
		GracefulStop: sc.GracefulStop,
		Limiter:      limiter,
	}, scenario, recorder, log)
	if err != nil {
		return err
	}

	stats, runErr := r.Run(ctx)
	if runErr != nil {
		log.Warn("run interrupted, reporting partial results", zap.Error(runErr))
	}

	sum := summary.Build(mem.Snapshot(), stats, summary.Scenario{
		TargetURL: sc.TargetURL,
		Method:    sc.Method,
		Duration:  sc.Duration,
		Threshold: sc.CheckThreshold,
	})

	if err := summary.WriteText(o.Out, sum); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if sc.SummaryExport != "" {
		if err := exportSummary(sc.SummaryExport, sum); err != nil {
			return err
		}
		log.Info("summary exported", zap.String("path", sc.SummaryExport))
	}

	if backends != nil && backends.Publishes() {
		publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		run, err := backends.Reports.Publish(publishCtx, sum)
		cancel()
		if err != nil {
			log.Error("publish report", zap.String("run_id", sum.ID), zap.Error(err))
		} else {
			log.Info("report published", zap.String("run_id", run.ID), zap.String("report_path", run.ReportPath))
		}
	}

	if runErr != nil {
		return runErr
	}
	if !sum.ThresholdPassed {
		return &cli.ExitError{Code: cli.ExitThresholdsFailed, Err: ErrThresholdsCrossed}
	}
	return nil
}

func (o *Options) startStatusServer(ctx context.Context, reg *prometheus.Registry, mem *metrics.InMemoryRecorder, backends *cli.Backends) (func(), error) {
	app, err := server.New("smoke-status", o.Log, reg)
	if err != nil {
		return nil, err
	}
	deps := handlers.StatusDeps{Gatherer: reg, Progress: mem}
	if backends != nil && backends.HasHistory {
		deps.Reports = backends.Reports
	}
	handlers.RegisterStatusRoutes(app, deps)

	ln, err := net.Listen("tcp", o.Config.Status.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on status address %s: %w", o.Config.Status.Addr, err)
	}

	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.ServeListener(srvCtx, app, ln, o.Log); err != nil {
			o.Log.Error("status server", zap.Error(err))
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

func exportSummary(path string, sum *model.RunSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary export: %w", err)
	}
	if err := summary.WriteJSON(f, sum); err != nil {
		f.Close()
		return fmt.Errorf("write summary export: %w", err)
	}
	return f.Close()
}
