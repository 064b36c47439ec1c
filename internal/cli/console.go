package cli

import (
	"sweepq/internal/sweep"
)

// Console prints sweep progress as rounds start and finish.
type Console struct {
	Printer  *Printer
	Progress *Progress
	Target   string
}

func (c *Console) Hook(e sweep.Event) {
	switch e.Kind {
	case sweep.RoundStarted:
		c.Printer.Header(c.Target, e.Concurrency, e.Requests)
		if c.Progress != nil {
			c.Progress.Begin(e.Requests)
		}
	case sweep.RoundFinished:
		if c.Progress != nil {
			c.Progress.End()
		}
		c.Printer.Summary(e.Summary)
	case sweep.CoolingDown:
		c.Printer.Waiting(e.Cooldown)
	}
}

// Abort stops the progress line of a round that will not finish.
func (c *Console) Abort() {
	if c.Progress != nil {
		c.Progress.End()
	}
}
