package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// CheckTally counts the outcomes of one named check.
type CheckTally struct {
	Name   string `json:"name"`
	Passes uint64 `json:"passes"`
	Fails  uint64 `json:"fails"`
}

// Progress is a cheap view of the counters, without latency samples.
type Progress struct {
	ActiveVUs             int64          `json:"vus"`
	Requests              uint64         `json:"http_reqs"`
	FailedRequests        uint64         `json:"http_req_failed"`
	Iterations            uint64         `json:"iterations"`
	InterruptedIterations uint64         `json:"interrupted_iterations"`
	StatusCounts          map[int]uint64 `json:"status_counts"`
	Checks                []CheckTally   `json:"checks"`
}

// Snapshot captures the counters plus every recorded latency sample.
type Snapshot struct {
	Progress
	RequestDurations   []time.Duration
	IterationDurations []time.Duration
}

// InMemoryRecorder keeps everything a run needs for its end-of-test summary.
type InMemoryRecorder struct {
	activeVUs             int64
	requests              uint64
	failedRequests        uint64
	iterations            uint64
	interruptedIterations uint64

	mu                 sync.Mutex
	statusCounts       map[int]uint64
	checkOrder         []string
	checks             map[string]*CheckTally
	requestDurations   []time.Duration
	iterationDurations []time.Duration
}

// NewInMemory returns a Recorder that stores metrics in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		statusCounts: make(map[int]uint64),
		checks:       make(map[string]*CheckTally),
	}
}

// ObserveRequest records one request and its latency.
func (m *InMemoryRecorder) ObserveRequest(status int, duration time.Duration, err error) {
	atomic.AddUint64(&m.requests, 1)
	if RequestFailed(status, err) {
		atomic.AddUint64(&m.failedRequests, 1)
	}

	m.mu.Lock()
	m.statusCounts[status]++
	m.requestDurations = append(m.requestDurations, duration)
	m.mu.Unlock()
}

// ObserveCheck records one check evaluation. Checks keep first-seen order.
func (m *InMemoryRecorder) ObserveCheck(name string, passed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tally, ok := m.checks[name]
	if !ok {
		tally = &CheckTally{Name: name}
		m.checks[name] = tally
		m.checkOrder = append(m.checkOrder, name)
	}
	if passed {
		tally.Passes++
	} else {
		tally.Fails++
	}
}

// ObserveIteration records one iteration. Interrupted iterations carry no latency sample.
func (m *InMemoryRecorder) ObserveIteration(duration time.Duration, interrupted bool) {
	if interrupted {
		atomic.AddUint64(&m.interruptedIterations, 1)
		return
	}
	atomic.AddUint64(&m.iterations, 1)

	m.mu.Lock()
	m.iterationDurations = append(m.iterationDurations, duration)
	m.mu.Unlock()
}

// SetActiveVUs stores the current VU count.
func (m *InMemoryRecorder) SetActiveVUs(n int) {
	atomic.StoreInt64(&m.activeVUs, int64(n))
}

// Progress returns a copy of the counters.
func (m *InMemoryRecorder) Progress() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progressLocked()
}

// Snapshot returns a copy of the counters and latency samples.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		Progress:           m.progressLocked(),
		RequestDurations:   append([]time.Duration(nil), m.requestDurations...),
		IterationDurations: append([]time.Duration(nil), m.iterationDurations...),
	}
}

func (m *InMemoryRecorder) progressLocked() Progress {
	statuses := make(map[int]uint64, len(m.statusCounts))
	for k, v := range m.statusCounts {
		statuses[k] = v
	}
	checks := make([]CheckTally, 0, len(m.checkOrder))
	for _, name := range m.checkOrder {
		checks = append(checks, *m.checks[name])
	}

	return Progress{
		ActiveVUs:             atomic.LoadInt64(&m.activeVUs),
		Requests:              atomic.LoadUint64(&m.requests),
		FailedRequests:        atomic.LoadUint64(&m.failedRequests),
		Iterations:            atomic.LoadUint64(&m.iterations),
		InterruptedIterations: atomic.LoadUint64(&m.interruptedIterations),
		StatusCounts:          statuses,
		Checks:                checks,
	}
}
