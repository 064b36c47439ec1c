package runner

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Version is sent in the User-Agent of every request.
var Version = "dev"

// Doer is the slice of *http.Client the executor needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Executor issues single GET requests against a fixed target.
type Executor struct {
	client Doer
	target string
}

func NewExecutor(client Doer, target string) *Executor {
	return &Executor{client: client, target: target}
}

// Target returns the URL every request is sent to.
func (e *Executor) Target() string {
	return e.target
}

// Execute sends request id and classifies what came back. It never fails:
// transport errors and non-2xx statuses are reported in the Outcome.
func (e *Executor) Execute(ctx context.Context, id int) Outcome {
	out := Outcome{ID: id}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.target, nil)
	if err != nil {
		out.Err = err.Error()
		return out
	}
	req.Header.Set("User-Agent", "sweepq/"+Version)
	req.Header.Set("X-Request-Id", uuid.NewString())

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		out.Elapsed = time.Since(start)
		out.Err = err.Error()
		return out
	}

	// Drain fully so the connection goes back to the pool and latency
	// includes the body transfer.
	_, err = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	out.Elapsed = time.Since(start)
	out.Status = resp.StatusCode

	if err != nil {
		out.Err = err.Error()
		return out
	}
	out.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	return out
}

// CloseIdle drops idle pooled connections when the client supports it.
func (e *Executor) CloseIdle() {
	if c, ok := e.client.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
