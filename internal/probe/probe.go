// Package probe performs health-check requests and evaluates checks on their results.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Result is the observation of one probe request.
type Result struct {
	// Status is the HTTP status code, or 0 when the request failed.
	Status    int
	Duration  time.Duration
	Err       error
	StartedAt time.Time
}

// Prober performs one health-check request.
type Prober interface {
	Do(ctx context.Context) Result
}

// HTTPProbe issues requests against a fixed URL.
type HTTPProbe struct {
	client *http.Client
	method string
	url    string
}

// New constructs an HTTPProbe. An empty method means GET.
func New(client *http.Client, method, url string) *HTTPProbe {
	if method == "" {
		method = http.MethodGet
	}
	return &HTTPProbe{client: client, method: strings.ToUpper(method), url: url}
}

// Do performs the request, drains the body so the connection can be reused,
// and reports the status and the time until the body was read.
func (p *HTTPProbe) Do(ctx context.Context) Result {
	start := time.Now()
	res := Result{StartedAt: start}

	req, err := http.NewRequestWithContext(ctx, p.method, p.url, nil)
	if err != nil {
		res.Err = fmt.Errorf("build request: %w", err)
		return res
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		res.Duration = time.Since(start)
		res.Err = err
		return res
	}
	defer resp.Body.Close()

	_, copyErr := io.Copy(io.Discard, resp.Body)
	res.Duration = time.Since(start)
	res.Status = resp.StatusCode
	if copyErr != nil {
		res.Err = fmt.Errorf("read body: %w", copyErr)
	}
	return res
}
