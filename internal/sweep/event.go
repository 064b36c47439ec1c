package sweep

import (
	"time"

	"sweepq/internal/stats"
)

type EventKind int

const (
	RoundStarted EventKind = iota
	RoundFinished
	CoolingDown
)

// Event reports sweep progress to a hook.
type Event struct {
	Kind        EventKind
	Round       int
	Concurrency int
	Requests    int
	// Summary is set for RoundFinished.
	Summary stats.Summary
	// Cooldown is set for CoolingDown; Concurrency is then the next level.
	Cooldown time.Duration
}
