// Package summary turns recorded metrics into the end-of-test report.
package summary

import (
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"gonum.org/v1/gonum/stat"

	"smoke/internal/metrics"
	"smoke/internal/model"
	"smoke/internal/runner"
)

// Scenario carries the run parameters echoed in the report.
type Scenario struct {
	TargetURL string
	Method    string
	Duration  time.Duration
	// Threshold is the minimum check pass rate. Zero disables it.
	Threshold float64
}

// Build assembles the summary of a finished run.
func Build(snap metrics.Snapshot, stats runner.Stats, sc Scenario) *model.RunSummary {
	s := &model.RunSummary{
		ID:        ulid.Make().String(),
		TargetURL: sc.TargetURL,
		Method:    sc.Method,
		VUs:       stats.VUs,
		Duration:  sc.Duration,
		StartedAt: stats.StartedAt.UTC(),
		EndedAt:   stats.EndedAt.UTC(),
		Threshold: sc.Threshold,
	}

	s.Checks = make([]model.CheckSummary, 0, len(snap.Checks))
	for _, c := range snap.Checks {
		s.Checks = append(s.Checks, model.CheckSummary{
			Name:   c.Name,
			Passes: int64(c.Passes),
			Fails:  int64(c.Fails),
		})
	}

	s.Requests = model.RequestStats{
		Count:    int64(snap.Requests),
		Failed:   int64(snap.FailedRequests),
		Duration: Trend(snap.RequestDurations),
	}
	if elapsed := stats.EndedAt.Sub(stats.StartedAt).Seconds(); elapsed > 0 {
		s.Requests.PerSecond = float64(snap.Requests) / elapsed
	}

	s.Iterations = model.IterationStats{
		Count:       int64(snap.Iterations),
		Interrupted: int64(snap.InterruptedIterations),
		Duration:    Trend(snap.IterationDurations),
	}

	s.ThresholdPassed = ThresholdPassed(s.CheckRate(), sc.Threshold)
	return s
}

// ThresholdPassed reports whether the check pass rate satisfies the threshold.
// A zero threshold always passes.
func ThresholdPassed(rate, threshold float64) bool {
	if threshold <= 0 {
		return true
	}
	return rate >= threshold
}

// Trend computes latency statistics in milliseconds. Empty input yields zeros.
func Trend(samples []time.Duration) model.TrendStats {
	if len(samples) == 0 {
		return model.TrendStats{}
	}

	xs := make([]float64, len(samples))
	for i, d := range samples {
		xs[i] = float64(d) / float64(time.Millisecond)
	}
	sort.Float64s(xs)

	return model.TrendStats{
		Avg: stat.Mean(xs, nil),
		Min: xs[0],
		Med: stat.Quantile(0.5, stat.LinInterp, xs, nil),
		Max: xs[len(xs)-1],
		P90: stat.Quantile(0.9, stat.LinInterp, xs, nil),
		P95: stat.Quantile(0.95, stat.LinInterp, xs, nil),
	}
}
