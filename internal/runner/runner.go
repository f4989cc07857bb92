// Package runner executes a scenario from a fixed pool of virtual users for a fixed duration.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"smoke/internal/metrics"
)

// ErrAlreadyStarted is returned when Run is called more than once.
var ErrAlreadyStarted = errors.New("runner already started")

// Scenario is the iteration body every virtual user executes repeatedly.
// vu is the 1-based virtual user number.
type Scenario interface {
	Iterate(ctx context.Context, vu int)
}

// ScenarioFunc adapts a function to Scenario.
type ScenarioFunc func(ctx context.Context, vu int)

// Iterate calls f.
func (f ScenarioFunc) Iterate(ctx context.Context, vu int) { f(ctx, vu) }

// Options configure a run.
type Options struct {
	VUs      int
	Duration time.Duration
	// Sleep is the pause after every iteration. It counts towards the iteration duration.
	Sleep time.Duration
	// GracefulStop is how long in-flight iterations may run past Duration.
	GracefulStop time.Duration
	// Limiter optionally caps the iteration start rate across all VUs.
	Limiter *rate.Limiter
}

// Validate rejects options the runner cannot execute.
func (o Options) Validate() error {
	if o.VUs < 1 {
		return fmt.Errorf("vus must be at least 1, got %d", o.VUs)
	}
	if o.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", o.Duration)
	}
	if o.Sleep < 0 || o.GracefulStop < 0 {
		return errors.New("sleep and graceful stop must not be negative")
	}
	return nil
}

// Stats describes a finished run.
type Stats struct {
	StartedAt time.Time
	EndedAt   time.Time
	VUs       int
}

// Runner runs a Scenario once.
type Runner struct {
	opts     Options
	scenario Scenario
	recorder metrics.Recorder
	logger   *zap.Logger

	mu      sync.Mutex
	started bool
}

// New creates a Runner.
func New(opts Options, scenario Scenario, recorder metrics.Recorder, logger *zap.Logger) (*Runner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if scenario == nil {
		return nil, errors.New("scenario is required")
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		opts:     opts,
		scenario: scenario,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "runner")),
	}, nil
}

// Run starts the virtual users and blocks until all of them stopped.
//
// No iteration starts after Duration. Iterations still running then get
// GracefulStop to finish before their context is cancelled; those are
// recorded as interrupted. Cancelling ctx stops the run early the same way,
// without the grace period.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return Stats{}, ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	stats := Stats{StartedAt: time.Now(), VUs: r.opts.VUs}

	// runCtx gates new iterations; iterCtx bounds the ones already running.
	runCtx, cancelRun := context.WithTimeout(ctx, r.opts.Duration)
	defer cancelRun()
	iterCtx, cancelIter := context.WithTimeout(ctx, r.opts.Duration+r.opts.GracefulStop)
	defer cancelIter()

	r.logger.Info("run started",
		zap.Int("vus", r.opts.VUs),
		zap.Duration("duration", r.opts.Duration),
		zap.Duration("sleep", r.opts.Sleep),
		zap.Duration("graceful_stop", r.opts.GracefulStop),
	)

	var wg sync.WaitGroup
	r.recorder.SetActiveVUs(r.opts.VUs)
	for vu := 1; vu <= r.opts.VUs; vu++ {
		wg.Add(1)
		go func(vu int) {
			defer wg.Done()
			r.loop(runCtx, iterCtx, vu)
		}(vu)
	}
	wg.Wait()
	r.recorder.SetActiveVUs(0)

	stats.EndedAt = time.Now()
	r.logger.Info("run finished", zap.Duration("elapsed", stats.EndedAt.Sub(stats.StartedAt)))

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("run aborted: %w", err)
	}
	return stats, nil
}

func (r *Runner) loop(runCtx, iterCtx context.Context, vu int) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for runCtx.Err() == nil {
		if r.opts.Limiter != nil {
			if err := r.opts.Limiter.Wait(runCtx); err != nil {
				return
			}
		}

		start := time.Now()
		r.scenario.Iterate(iterCtx, vu)
		if iterCtx.Err() != nil {
			r.recorder.ObserveIteration(time.Since(start), true)
			return
		}

		if r.opts.Sleep > 0 {
			if timer == nil {
				timer = time.NewTimer(r.opts.Sleep)
			} else {
				timer.Reset(r.opts.Sleep)
			}
			select {
			case <-timer.C:
			case <-runCtx.Done():
			}
		}
		r.recorder.ObserveIteration(time.Since(start), false)
	}
}
