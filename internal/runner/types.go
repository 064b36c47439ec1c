package runner

import (
	"time"
)

// Outcome is the recorded result of one request attempt.
// Status is 0 when no response was received; Err is empty when nothing failed.
type Outcome struct {
	ID      int           `json:"id"`
	Status  int           `json:"status,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
	Success bool          `json:"success"`
	Err     string        `json:"error,omitempty"`
}

// Batch is everything one dispatch produced.
type Batch struct {
	Outcomes []Outcome
	// Elapsed spans from before the first request was admitted until the last one settled.
	Elapsed time.Duration
}

// Observer is notified as requests move through a dispatch.
// Calls arrive from many goroutines at once.
type Observer interface {
	RequestStarted(id int)
	RequestFinished(o Outcome)
}

// Observers fans notifications out to several observers.
type Observers []Observer

func (obs Observers) RequestStarted(id int) {
	for _, o := range obs {
		o.RequestStarted(id)
	}
}

func (obs Observers) RequestFinished(out Outcome) {
	for _, o := range obs {
		o.RequestFinished(out)
	}
}

type nopObserver struct{}

func (nopObserver) RequestStarted(int)      {}
func (nopObserver) RequestFinished(Outcome) {}
