package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Latency buckets in seconds, tuned for health endpoints that should answer fast.
var requestBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

// PrometheusRecorder exposes run metrics as Prometheus collectors.
type PrometheusRecorder struct {
	requests          *prometheus.CounterVec
	failedRequests    prometheus.Counter
	requestDuration   prometheus.Histogram
	checks            *prometheus.CounterVec
	iterations        *prometheus.CounterVec
	iterationDuration prometheus.Histogram
	vus               prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	m := &PrometheusRecorder{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smoke_http_reqs_total",
				Help: "Total number of HTTP requests issued by virtual users.",
			},
			[]string{"status"},
		),
		failedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smoke_http_req_failed_total",
			Help: "HTTP requests that errored or returned a status outside 200-399.",
		}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smoke_http_req_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: requestBuckets,
		}),
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smoke_checks_total",
				Help: "Check evaluations by check name and result.",
			},
			[]string{"check", "result"},
		),
		iterations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smoke_iterations_total",
				Help: "Iterations by result (complete or interrupted).",
			},
			[]string{"result"},
		),
		iterationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smoke_iteration_duration_seconds",
			Help:    "Duration of complete iterations, sleep included.",
			Buckets: prometheus.DefBuckets,
		}),
		vus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smoke_vus",
			Help: "Number of active virtual users.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.requests, m.failedRequests, m.requestDuration,
		m.checks, m.iterations, m.iterationDuration, m.vus,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ObserveRequest counts the request by status and observes its latency.
func (m *PrometheusRecorder) ObserveRequest(status int, duration time.Duration, err error) {
	m.requests.WithLabelValues(strconv.Itoa(status)).Inc()
	if RequestFailed(status, err) {
		m.failedRequests.Inc()
	}
	m.requestDuration.Observe(duration.Seconds())
}

// ObserveCheck counts one check evaluation.
func (m *PrometheusRecorder) ObserveCheck(name string, passed bool) {
	result := "pass"
	if !passed {
		result = "fail"
	}
	m.checks.WithLabelValues(name, result).Inc()
}

// ObserveIteration counts the iteration and observes complete ones.
func (m *PrometheusRecorder) ObserveIteration(duration time.Duration, interrupted bool) {
	if interrupted {
		m.iterations.WithLabelValues("interrupted").Inc()
		return
	}
	m.iterations.WithLabelValues("complete").Inc()
	m.iterationDuration.Observe(duration.Seconds())
}

// SetActiveVUs sets the VU gauge.
func (m *PrometheusRecorder) SetActiveVUs(n int) {
	m.vus.Set(float64(n))
}
