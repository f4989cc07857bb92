package probe

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DialTimeout is the connection timeout.
	DialTimeout = 10 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 10 * time.Second
	// UserAgent identifies probe traffic in target access logs.
	UserAgent = "smoke/1.0"
)

// NewHTTPClient creates the client shared by all virtual users.
// Requests are traced through otelhttp and redirects are reported, not followed,
// so a redirecting health endpoint fails a 200 check.
func NewHTTPClient(timeout time.Duration, maxConns int) *http.Client {
	if maxConns < 1 {
		maxConns = 1
	}
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: TLSHandshakeTimeout,
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		IdleConnTimeout:     90 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(base),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
