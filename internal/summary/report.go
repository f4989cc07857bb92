package summary

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"smoke/internal/model"
)

const labelWidth = 32

// WriteJSON writes the summary as indented JSON.
func WriteJSON(w io.Writer, s *model.RunSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteText writes the human-readable end-of-test summary.
func WriteText(w io.Writer, s *model.RunSummary) error {
	p := &printer{w: w}

	p.printf("\n  run %s\n", s.ID)
	p.printf("  scenario: %d VUs, %s duration, %s %s\n\n", s.VUs, s.Duration, s.Method, s.TargetURL)

	for _, c := range s.Checks {
		if c.Fails == 0 {
			p.printf("     ✓ %s\n", c.Name)
			continue
		}
		p.printf("     ✗ %s\n", c.Name)
		p.printf("      ↳  %.0f%% — ✓ %d / ✗ %d\n", c.Rate()*100, c.Passes, c.Fails)
	}
	if len(s.Checks) > 0 {
		p.printf("\n")
	}

	passed, failed := s.ChecksPassed(), s.ChecksFailed()
	p.metric("checks", "%s ✓ %d ✗ %d", percent(s.CheckRate()), passed, failed)
	p.metric("http_req_duration", "%s", trend(s.Requests.Duration))

	var failedRate float64
	if s.Requests.Count > 0 {
		failedRate = float64(s.Requests.Failed) / float64(s.Requests.Count)
	}
	p.metric("http_req_failed", "%s ✓ %d ✗ %d", percent(failedRate), s.Requests.Failed, s.Requests.Count-s.Requests.Failed)
	p.metric("http_reqs", "%d %.2f/s", s.Requests.Count, s.Requests.PerSecond)
	p.metric("iteration_duration", "%s", trend(s.Iterations.Duration))
	p.metric("iterations", "%d", s.Iterations.Count)
	if s.Iterations.Interrupted > 0 {
		p.metric("interrupted_iterations", "%d", s.Iterations.Interrupted)
	}
	p.metric("vus", "%d", s.VUs)

	if s.Threshold > 0 {
		mark := "✓"
		if !s.ThresholdPassed {
			mark = "✗"
		}
		p.printf("\n  thresholds:\n     %s checks rate>=%s (actual %s)\n", mark, percent(s.Threshold), percent(s.CheckRate()))
	}
	p.printf("\n")

	return p.err
}

// printer remembers the first write error so the report can be written without per-line checks.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) metric(name, format string, args ...any) {
	dots := labelWidth - len(name)
	if dots < 3 {
		dots = 3
	}
	p.printf("     %s%s: "+format+"\n", append([]any{name, strings.Repeat(".", dots)}, args...)...)
}

func percent(rate float64) string {
	return fmt.Sprintf("%.2f%%", rate*100)
}

func trend(t model.TrendStats) string {
	return fmt.Sprintf("avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s",
		ms(t.Avg), ms(t.Min), ms(t.Med), ms(t.Max), ms(t.P90), ms(t.P95))
}

func ms(v float64) string {
	if v >= 1000 {
		return fmt.Sprintf("%.2fs", v/1000)
	}
	return fmt.Sprintf("%.2fms", v)
}
