// Package metrics records what virtual users observe during a run.
package metrics

import "time"

// Recorder captures metric events emitted by virtual users.
// Implementations must be safe for concurrent use.
type Recorder interface {
	// ObserveRequest records one HTTP request. status is 0 when the request errored.
	ObserveRequest(status int, duration time.Duration, err error)
	// ObserveCheck records one evaluation of a named check.
	ObserveCheck(name string, passed bool)
	// ObserveIteration records one finished or interrupted iteration.
	ObserveIteration(duration time.Duration, interrupted bool)
	// SetActiveVUs reports the number of running virtual users.
	SetActiveVUs(n int)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
	Progress() Progress
}

// RequestFailed reports whether a request counts as failed: it errored or
// its status is outside the 2xx/3xx range.
func RequestFailed(status int, err error) bool {
	return err != nil || status < 200 || status > 399
}

type multiRecorder []Recorder

// Multi fans every event out to all given recorders. Nil recorders are skipped.
func Multi(recorders ...Recorder) Recorder {
	m := make(multiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m multiRecorder) ObserveRequest(status int, duration time.Duration, err error) {
	for _, r := range m {
		r.ObserveRequest(status, duration, err)
	}
}

func (m multiRecorder) ObserveCheck(name string, passed bool) {
	for _, r := range m {
		r.ObserveCheck(name, passed)
	}
}

func (m multiRecorder) ObserveIteration(duration time.Duration, interrupted bool) {
	for _, r := range m {
		r.ObserveIteration(duration, interrupted)
	}
}

func (m multiRecorder) SetActiveVUs(n int) {
	for _, r := range m {
		r.SetActiveVUs(n)
	}
}
