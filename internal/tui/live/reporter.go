package live

import (
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"sweepq/internal/runner"
	"sweepq/internal/stats"
	"sweepq/internal/sweep"
)

// Snapshot is the state of the round in flight.
type Snapshot struct {
	Total    int64
	OK       int64
	Failed   int64
	InFlight int64
	Elapsed  time.Duration
	P50      time.Duration
	P90      time.Duration
	P99      time.Duration
}

func (s Snapshot) Finished() int64 { return s.OK + s.Failed }

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(tea.Msg)
}

// Reporter counts requests as a runner.Observer and forwards sweep events to
// the program.
type Reporter struct {
	program Sender

	total    atomic.Int64
	ok       atomic.Int64
	failed   atomic.Int64
	inflight atomic.Int64
	started  atomic.Int64
	hist     *stats.SafeHistogram
}

func NewReporter(program Sender) *Reporter {
	return &Reporter{program: program, hist: stats.NewSafeHistogram()}
}

func (r *Reporter) RequestStarted(int) {
	r.inflight.Add(1)
}

func (r *Reporter) RequestFinished(o runner.Outcome) {
	r.inflight.Add(-1)
	if o.Success {
		r.ok.Add(1)
		r.hist.Record(o.Elapsed)
		return
	}
	r.failed.Add(1)
}

func (r *Reporter) Snapshot() Snapshot {
	s := Snapshot{
		Total:    r.total.Load(),
		OK:       r.ok.Load(),
		Failed:   r.failed.Load(),
		InFlight: r.inflight.Load(),
		P50:      r.hist.Quantile(50),
		P90:      r.hist.Quantile(90),
		P99:      r.hist.Quantile(99),
	}
	if started := r.started.Load(); started > 0 {
		s.Elapsed = time.Since(time.Unix(0, started))
	}
	return s
}

// Hook is a sweep hook. Counters reset when a round starts.
func (r *Reporter) Hook(e sweep.Event) {
	switch e.Kind {
	case sweep.RoundStarted:
		r.total.Store(int64(e.Requests))
		r.ok.Store(0)
		r.failed.Store(0)
		r.inflight.Store(0)
		r.hist.Reset()
		r.started.Store(time.Now().UnixNano())
		r.program.Send(RoundStartedMsg{Round: e.Round, Concurrency: e.Concurrency, Requests: e.Requests})
	case sweep.RoundFinished:
		r.program.Send(RoundFinishedMsg{Round: e.Round, Summary: e.Summary})
	case sweep.CoolingDown:
		r.program.Send(CoolingDownMsg{Next: e.Concurrency, Cooldown: e.Cooldown})
	}
}

// Finish tells the program the run is over.
func (r *Reporter) Finish(res sweep.Result, err error) {
	r.program.Send(FinishedMsg{Result: res, Err: err})
}
