// Package sweep runs rounds of load at increasing concurrency and picks the
// level with the best throughput that still meets a success threshold.
package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sweepq/internal/runner"
	"sweepq/internal/stats"
)

const (
	DefaultCooldown   = 3 * time.Second
	DefaultMinSuccess = 0.95
)

// ErrInvalidStep is returned when a sweep could never reach its max level.
var ErrInvalidStep = errors.New("step must be at least 1")

// RoundRunner is what a sweep drives each round through; *runner.Dispatcher
// satisfies it.
type RoundRunner interface {
	Dispatch(ctx context.Context, total, concurrency int) (runner.Batch, error)
}

// Plan describes the levels to visit: Start, Start+Step, ... up to Max.
type Plan struct {
	Start            int
	Max              int
	Step             int
	RequestsPerRound int
}

// Count is the number of rounds the plan visits.
func (p Plan) Count() int {
	if p.Step < 1 || p.Start > p.Max {
		return 0
	}
	return (p.Max-p.Start)/p.Step + 1
}

// Peak is the last and highest level the plan visits, or 0 for an empty plan.
func (p Plan) Peak() int {
	if p.Count() == 0 {
		return 0
	}
	return p.Start + ((p.Max-p.Start)/p.Step)*p.Step
}

// Levels lists the concurrency levels the plan visits, in order.
func (p Plan) Levels() []int {
	n := p.Count()
	if n == 0 {
		return nil
	}
	levels := make([]int, 0, n)
	for c := p.Start; ; c += p.Step {
		levels = append(levels, c)
		// the next step would pass Max, or overflow near math.MaxInt
		if c > p.Max-p.Step {
			break
		}
	}
	return levels
}

// Result is the ordered list of rounds plus the selected level, if any.
type Result struct {
	ID      string          `json:"id"`
	Rounds  []stats.Summary `json:"rounds"`
	Optimal stats.Summary   `json:"optimal"`
	Found   bool            `json:"found"`
}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateCooldown
	stateDone
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	case stateCooldown:
		return "cooldown"
	case stateDone:
		return "done"
	}
	return "unknown"
}

type Sweeper struct {
	rounds     RoundRunner
	cooldown   time.Duration
	minSuccess float64
	hook       func(Event)
	logger     *zap.Logger
	// between runs at the start of each cooldown.
	between func()
}

type Option func(*Sweeper)

func WithCooldown(d time.Duration) Option {
	return func(s *Sweeper) { s.cooldown = d }
}

func WithMinSuccess(ratio float64) Option {
	return func(s *Sweeper) { s.minSuccess = ratio }
}

// WithHook receives progress events. It is called from the sweeping goroutine.
func WithHook(fn func(Event)) Option {
	return func(s *Sweeper) { s.hook = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBetweenRounds registers fn to run at the start of every cooldown.
func WithBetweenRounds(fn func()) Option {
	return func(s *Sweeper) { s.between = fn }
}

func New(rounds RoundRunner, opts ...Option) *Sweeper {
	s := &Sweeper{
		rounds:     rounds,
		cooldown:   DefaultCooldown,
		minSuccess: DefaultMinSuccess,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs one round per level of plan, strictly one after another, pausing
// for the cooldown between rounds. On cancellation it returns the rounds that
// completed along with ctx.Err(); the interrupted round is dropped.
func (s *Sweeper) Sweep(ctx context.Context, plan Plan) (Result, error) {
	res := Result{ID: uuid.NewString()}
	if plan.Start <= plan.Max && plan.Step < 1 {
		return res, ErrInvalidStep
	}

	log := s.logger.With(zap.String("sweep_id", res.ID))
	levels := plan.Levels()
	next := 0
	st := stateIdle

	for st != stateDone {
		if err := ctx.Err(); err != nil {
			log.Info("sweep cancelled", zap.Stringer("state", st), zap.Int("rounds_completed", len(res.Rounds)))
			return s.finish(res), err
		}

		switch st {
		case stateIdle:
			log.Debug("sweep planned", zap.Ints("levels", levels), zap.Int("requests_per_round", plan.RequestsPerRound))
			if len(levels) == 0 {
				st = stateDone
				continue
			}
			st = stateRunning

		case stateRunning:
			level := levels[next]
			s.emit(Event{Kind: RoundStarted, Round: next, Concurrency: level, Requests: plan.RequestsPerRound})
			log.Info("round started", zap.Int("round", next), zap.Int("concurrency", level))

			batch, err := s.rounds.Dispatch(ctx, plan.RequestsPerRound, level)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				return s.finish(res), err
			}

			summary := stats.Summarize(batch.Outcomes, level, batch.Elapsed)
			res.Rounds = append(res.Rounds, summary)
			s.emit(Event{Kind: RoundFinished, Round: next, Concurrency: level, Requests: plan.RequestsPerRound, Summary: summary})
			log.Info("round finished",
				zap.Int("round", next),
				zap.Int("concurrency", level),
				zap.Int("success", summary.SuccessCount),
				zap.Int("failure", summary.FailureCount),
				zap.Float64("rps", summary.RequestsPerSecond),
			)

			next++
			if next == len(levels) {
				st = stateDone
			} else {
				st = stateCooldown
			}

		case stateCooldown:
			if s.between != nil {
				s.between()
			}
			s.emit(Event{Kind: CoolingDown, Round: next, Concurrency: levels[next], Cooldown: s.cooldown})
			if err := wait(ctx, s.cooldown); err != nil {
				continue
			}
			st = stateRunning
		}
	}

	res = s.finish(res)
	if res.Found {
		log.Info("sweep finished", zap.Int("optimal_concurrency", res.Optimal.Concurrency), zap.Float64("rps", res.Optimal.RequestsPerSecond))
	} else {
		log.Info("sweep finished without an optimal level", zap.Int("rounds", len(res.Rounds)))
	}
	return res, nil
}

func (s *Sweeper) finish(res Result) Result {
	res.Optimal, res.Found = SelectOptimal(res.Rounds, s.minSuccess)
	return res
}

func (s *Sweeper) emit(e Event) {
	if s.hook != nil {
		s.hook(e)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SelectOptimal picks the round with the highest requests per second among
// those whose success rate is at least minSuccess. On ties the earlier round
// wins. It reports false when no round qualifies.
func SelectOptimal(rounds []stats.Summary, minSuccess float64) (stats.Summary, bool) {
	var (
		best  stats.Summary
		found bool
	)
	for _, r := range rounds {
		if r.TotalRequests == 0 || r.SuccessRate() < minSuccess {
			continue
		}
		if !found || r.RequestsPerSecond > best.RequestsPerSecond {
			best = r
			found = true
		}
	}
	return best, found
}
