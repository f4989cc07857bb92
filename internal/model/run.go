package model

import "time"

// Run is the persisted record of a finished smoke run.
// It carries headline numbers only; the full summary lives in the JSON report.
type Run struct {
	ID              string    `json:"id"`
	TargetURL       string    `json:"target_url"`
	VUs             int       `json:"vus"`
	DurationMs      int64     `json:"duration_ms"`
	Requests        int64     `json:"requests"`
	FailedRequests  int64     `json:"failed_requests"`
	ChecksPassed    int64     `json:"checks_passed"`
	ChecksFailed    int64     `json:"checks_failed"`
	ThresholdPassed bool      `json:"threshold_passed"`
	ReportPath      string    `json:"report_path,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	CreatedAt       time.Time `json:"created_at"`
}
