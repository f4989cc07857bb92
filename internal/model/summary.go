package model

import "time"

// CheckSummary tallies the outcomes of one named check.
type CheckSummary struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// Rate returns the share of passing evaluations, or 0 when the check never ran.
func (c CheckSummary) Rate() float64 {
	total := c.Passes + c.Fails
	if total == 0 {
		return 0
	}
	return float64(c.Passes) / float64(total)
}

// TrendStats summarizes a latency distribution in milliseconds.
type TrendStats struct {
	Avg float64 `json:"avg"`
	Min float64 `json:"min"`
	Med float64 `json:"med"`
	Max float64 `json:"max"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
}

// RequestStats summarizes the HTTP requests of a run.
type RequestStats struct {
	Count     int64      `json:"count"`
	Failed    int64      `json:"failed"`
	PerSecond float64    `json:"per_second"`
	Duration  TrendStats `json:"duration_ms"`
}

// IterationStats summarizes the iterations of a run.
type IterationStats struct {
	Count       int64      `json:"count"`
	Interrupted int64      `json:"interrupted"`
	Duration    TrendStats `json:"duration_ms"`
}

// RunSummary is the end-of-test report of a smoke run.
type RunSummary struct {
	ID              string         `json:"id"`
	TargetURL       string         `json:"target_url"`
	Method          string         `json:"method"`
	VUs             int            `json:"vus"`
	Duration        time.Duration  `json:"duration_ns"`
	StartedAt       time.Time      `json:"started_at"`
	EndedAt         time.Time      `json:"ended_at"`
	Checks          []CheckSummary `json:"checks"`
	Requests        RequestStats   `json:"http_reqs"`
	Iterations      IterationStats `json:"iterations"`
	Threshold       float64        `json:"check_threshold,omitempty"`
	ThresholdPassed bool           `json:"threshold_passed"`
}

// ChecksPassed returns the total number of passing check evaluations.
func (s *RunSummary) ChecksPassed() int64 {
	var n int64
	for _, c := range s.Checks {
		n += c.Passes
	}
	return n
}

// ChecksFailed returns the total number of failing check evaluations.
func (s *RunSummary) ChecksFailed() int64 {
	var n int64
	for _, c := range s.Checks {
		n += c.Fails
	}
	return n
}

// CheckRate returns the pass rate across all checks.
func (s *RunSummary) CheckRate() float64 {
	return CheckSummary{Passes: s.ChecksPassed(), Fails: s.ChecksFailed()}.Rate()
}

// Run converts the summary into its persisted record.
func (s *RunSummary) Run() *Run {
	return &Run{
		ID:              s.ID,
		TargetURL:       s.TargetURL,
		VUs:             s.VUs,
		DurationMs:      s.EndedAt.Sub(s.StartedAt).Milliseconds(),
		Requests:        s.Requests.Count,
		FailedRequests:  s.Requests.Failed,
		ChecksPassed:    s.ChecksPassed(),
		ChecksFailed:    s.ChecksFailed(),
		ThresholdPassed: s.ThresholdPassed,
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
	}
}
