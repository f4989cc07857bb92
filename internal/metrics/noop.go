package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest is a no-op.
func (n *NoopRecorder) ObserveRequest(status int, duration time.Duration, err error) {}

// ObserveCheck is a no-op.
func (n *NoopRecorder) ObserveCheck(name string, passed bool) {}

// ObserveIteration is a no-op.
func (n *NoopRecorder) ObserveIteration(duration time.Duration, interrupted bool) {}

// SetActiveVUs is a no-op.
func (n *NoopRecorder) SetActiveVUs(int) {}
