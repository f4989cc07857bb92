package probe

import "fmt"

// Check is a named assertion on a probe result.
type Check struct {
	Name string
	Fn   func(Result) bool
}

// Outcome is the evaluation of one check.
type Outcome struct {
	Name   string
	Passed bool
}

// StatusCheck passes when the response status equals code.
// A request error leaves the status at 0, so it always fails.
func StatusCheck(code int) Check {
	return Check{
		Name: fmt.Sprintf("status was %d", code),
		Fn: func(r Result) bool {
			return r.Status == code
		},
	}
}

// Evaluate runs every check against the result, in order.
func Evaluate(r Result, checks []Check) []Outcome {
	out := make([]Outcome, 0, len(checks))
	for _, c := range checks {
		out = append(out, Outcome{Name: c.Name, Passed: c.Fn(r)})
	}
	return out
}

// AllPassed reports whether every outcome passed.
func AllPassed(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if !o.Passed {
			return false
		}
	}
	return true
}
