package probe

import (
	"context"

	"go.uber.org/zap"

	"smoke/internal/metrics"
)

// HealthCheck is the iteration body run by every virtual user: one request,
// its checks, and nothing else. It never retries.
type HealthCheck struct {
	prober   Prober
	checks   []Check
	recorder metrics.Recorder
	logger   *zap.Logger
}

// NewHealthCheck wires a prober, its checks and the recorder receiving the outcomes.
func NewHealthCheck(prober Prober, checks []Check, recorder metrics.Recorder, logger *zap.Logger) *HealthCheck {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthCheck{
		prober:   prober,
		checks:   checks,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "probe.healthcheck")),
	}
}

// Iterate performs one probe and records the request and check outcomes.
// When ctx ends while the request is in flight, nothing is recorded: the
// request was cut short by the run, not refused by the target.
func (h *HealthCheck) Iterate(ctx context.Context, vu int) {
	res := h.prober.Do(ctx)
	if ctx.Err() != nil {
		return
	}

	h.recorder.ObserveRequest(res.Status, res.Duration, res.Err)
	for _, o := range Evaluate(res, h.checks) {
		h.recorder.ObserveCheck(o.Name, o.Passed)
		if !o.Passed {
			fields := []zap.Field{
				zap.Int("vu", vu),
				zap.String("check", o.Name),
				zap.Int("status", res.Status),
				zap.Duration("duration", res.Duration),
			}
			if res.Err != nil {
				fields = append(fields, zap.Error(res.Err))
			}
			h.logger.Debug("check failed", fields...)
		}
	}
}
