package runner

import (
	"crypto/tls"
	"net/http"
	"time"
)

// ClientOptions shape the shared HTTP client.
type ClientOptions struct {
	Timeout time.Duration
	// MaxConns caps connections per host. It should be at least the highest
	// concurrency the client will be driven at.
	MaxConns int
	Insecure bool
}

// NewHTTPClient returns a pooled client sized for load generation.
func NewHTTPClient(opts ClientOptions) *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if opts.MaxConns > 0 {
		t.MaxIdleConns = opts.MaxConns
		t.MaxConnsPerHost = opts.MaxConns
		t.MaxIdleConnsPerHost = opts.MaxConns
	}
	if opts.Insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: t,
	}
}
