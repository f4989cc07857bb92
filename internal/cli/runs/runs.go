// Package runs implements the run history commands.
package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smoke/internal/cli"
	"smoke/internal/model"
	"smoke/internal/service"
)

// ReportsFactory opens the report service and returns a function releasing it.
type ReportsFactory func(ctx context.Context, opts *cli.Options) (service.ReportService, func() error, error)

// Options are shared by the runs subcommands.
type Options struct {
	*cli.Options

	// Output is "table" or "json".
	Output string
	Limit  int
	Offset int
	// URLExpiry is the lifetime of the presigned report URL printed by get; 0 omits it.
	URLExpiry time.Duration

	open ReportsFactory
}

// NewCommand creates the runs command group.
func NewCommand(globalOpts *cli.Options) *cobra.Command {
	return newCommand(globalOpts, openHistory)
}

func newCommand(globalOpts *cli.Options, open ReportsFactory) *cobra.Command {
	opts := &Options{Options: globalOpts, open: open}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the history of finished runs",
		Long:  "Inspect the history of finished runs. Requires DB_HOST; reports additionally need MINIO_ENDPOINT.",
	}
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "table", "Output format: table or json")

	list := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withReports(cmd.Context(), opts.list)
		},
	}
	list.Flags().IntVar(&opts.Limit, "limit", 10, "Maximum number of runs")
	list.Flags().IntVar(&opts.Offset, "offset", 0, "Number of runs to skip")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one run and a download link for its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withReports(cmd.Context(), func(ctx context.Context, svc service.ReportService) error {
				return opts.get(ctx, svc, args[0])
			})
		},
	}
	get.Flags().DurationVar(&opts.URLExpiry, "url-expiry", 15*time.Minute, "Lifetime of the presigned report URL, 0 to omit it")

	report := &cobra.Command{
		Use:   "report ID",
		Short: "Print the stored JSON report of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withReports(cmd.Context(), func(ctx context.Context, svc service.ReportService) error {
				return opts.report(ctx, svc, args[0])
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a run and its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withReports(cmd.Context(), func(ctx context.Context, svc service.ReportService) error {
				if err := svc.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(opts.Out, "run %s deleted\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, get, report, del)
	return cmd
}

func openHistory(ctx context.Context, opts *cli.Options) (service.ReportService, func() error, error) {
	b, err := cli.OpenBackends(ctx, opts.Config, opts.Log)
	if err != nil {
		return nil, nil, err
	}
	if !b.HasHistory {
		b.Close()
		return nil, nil, service.ErrHistoryDisabled
	}
	return b.Reports, b.Close, nil
}

func (o *Options) withReports(ctx context.Context, fn func(context.Context, service.ReportService) error) error {
	if o.Output != "table" && o.Output != "json" {
		return fmt.Errorf("unsupported output format %q", o.Output)
	}
	svc, closeFn, err := o.open(ctx, o.Options)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, svc)
}

func (o *Options) list(ctx context.Context, svc service.ReportService) error {
	res, err := svc.List(ctx, o.Limit, o.Offset)
	if err != nil {
		return err
	}
	if o.Output == "json" {
		return writeJSON(o.Out, res)
	}

	tw := tabwriter.NewWriter(o.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tTARGET\tVUS\tREQS\tFAILED\tCHECKS\tTHRESHOLD")
	for _, r := range res.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.TargetURL, r.VUs,
			r.Requests, r.FailedRequests, checkRate(r), thresholdMark(r.ThresholdPassed))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(o.Out, "\n%d of %d runs\n", len(res.Items), res.Total)
	return err
}

func (o *Options) get(ctx context.Context, svc service.ReportService, id string) error {
	run, err := svc.Get(ctx, id)
	if err != nil {
		return err
	}
	reportURL := o.reportURL(ctx, svc, run)
	if o.Output == "json" {
		return writeJSON(o.Out, runView{Run: run, ReportURL: reportURL})
	}

	tw := tabwriter.NewWriter(o.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id:\t%s\n", run.ID)
	fmt.Fprintf(tw, "target:\t%s\n", run.TargetURL)
	fmt.Fprintf(tw, "vus:\t%d\n", run.VUs)
	fmt.Fprintf(tw, "started:\t%s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "duration:\t%s\n", time.Duration(run.DurationMs)*time.Millisecond)
	fmt.Fprintf(tw, "requests:\t%d (%d failed)\n", run.Requests, run.FailedRequests)
	fmt.Fprintf(tw, "checks:\t%s (%d passed, %d failed)\n", checkRate(*run), run.ChecksPassed, run.ChecksFailed)
	fmt.Fprintf(tw, "threshold:\t%s\n", thresholdMark(run.ThresholdPassed))
	if run.ReportPath != "" {
		fmt.Fprintf(tw, "report:\t%s\n", run.ReportPath)
	}
	if reportURL != "" {
		fmt.Fprintf(tw, "report url:\t%s\n", reportURL)
	}
	return tw.Flush()
}

// runView is a run as printed by get -o json.
type runView struct {
	*model.Run
	ReportURL string `json:"report_url,omitempty"`
}

// reportURL presigns the run's report. A missing link does not fail get.
func (o *Options) reportURL(ctx context.Context, svc service.ReportService, run *model.Run) string {
	if o.URLExpiry <= 0 || run.ReportPath == "" {
		return ""
	}
	u, err := svc.PresignReport(ctx, run, o.URLExpiry)
	if err != nil {
		if !errors.Is(err, service.ErrReportUnavailable) {
			o.Log.Warn("presign report", zap.String("run_id", run.ID), zap.Error(err))
		}
		return ""
	}
	return u
}

func (o *Options) report(ctx context.Context, svc service.ReportService, id string) error {
	rc, err := svc.Report(ctx, id)
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(o.Out, rc)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func checkRate(r model.Run) string {
	rate := model.CheckSummary{Passes: r.ChecksPassed, Fails: r.ChecksFailed}.Rate()
	return fmt.Sprintf("%.2f%%", rate*100)
}

func thresholdMark(passed bool) string {
	if passed {
		return "✓"
	}
	return "✗"
}
