package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sweepq/internal/runner"
	"sweepq/internal/stats"
)

// Progress is a runner.Observer that redraws a one-line progress bar while a
// round is in flight.
type Progress struct {
	w        io.Writer
	interval time.Duration

	total    atomic.Int64
	inflight atomic.Int64
	ok       atomic.Int64
	failed   atomic.Int64
	hist     *stats.SafeHistogram

	mu      sync.Mutex
	started time.Time
	stop    chan struct{}
	done    chan struct{}
}

func NewProgress(w io.Writer) *Progress {
	return &Progress{
		w:        w,
		interval: 200 * time.Millisecond,
		hist:     stats.NewSafeHistogram(),
	}
}

func (p *Progress) RequestStarted(int) {
	p.inflight.Add(1)
}

func (p *Progress) RequestFinished(o runner.Outcome) {
	p.inflight.Add(-1)
	if o.Success {
		p.ok.Add(1)
		p.hist.Record(o.Elapsed)
		return
	}
	p.failed.Add(1)
}

// Begin resets the counters for a round of total requests and starts redrawing.
func (p *Progress) Begin(total int) {
	p.End()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.total.Store(int64(total))
	p.inflight.Store(0)
	p.ok.Store(0)
	p.failed.Store(0)
	p.hist.Reset()
	p.started = time.Now()
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	go p.loop(p.stop, p.done)
}

// End draws the final state and stops redrawing. It is safe to call when no
// round is running.
func (p *Progress) End() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	fmt.Fprintf(p.w, "\r%s\n", p.line())
}

func (p *Progress) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			fmt.Fprintf(p.w, "\r%s", p.line())
		}
	}
}

func (p *Progress) line() string {
	total := p.total.Load()
	ok, failed := p.ok.Load(), p.failed.Load()
	finished := ok + failed

	pct := 1.0
	if total > 0 {
		pct = float64(finished) / float64(total)
	}

	p.mu.Lock()
	elapsed := time.Since(p.started)
	p.mu.Unlock()

	rps := 0.0
	if elapsed.Seconds() > 0 {
		rps = float64(ok) / elapsed.Seconds()
	}

	return fmt.Sprintf("%s %3.0f%% | %d/%d | Inf: %3d | RPS: %.1f | P90: %.1fms | OK: %d | Err: %d",
		progressBar(pct, 20), pct*100,
		finished, total,
		p.inflight.Load(),
		rps,
		millis(p.hist.Quantile(90)),
		ok, failed,
	)
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}
