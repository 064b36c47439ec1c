package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrInvalidConcurrency is returned when a dispatch is asked to run with fewer
// than one request in flight.
var ErrInvalidConcurrency = errors.New("concurrency must be at least 1")

// Dispatcher runs batches of requests with a bounded number in flight.
type Dispatcher struct {
	exec     *Executor
	observer Observer
	logger   *zap.Logger
}

type DispatcherOption func(*Dispatcher)

// WithObserver adds an observer. It may be given more than once.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) {
		if o == nil {
			return
		}
		if existing, ok := d.observer.(Observers); ok {
			d.observer = append(existing, o)
			return
		}
		d.observer = Observers{o}
	}
}

func WithLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func NewDispatcher(exec *Executor, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		exec:     exec,
		observer: nopObserver{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch issues total requests with at most concurrency of them in flight and
// waits for every one to settle. Outcomes[i] holds request i.
//
// If ctx is cancelled no further requests are admitted, in-flight ones are
// cancelled through their request context, and the partial batch is dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, total, concurrency int) (Batch, error) {
	if concurrency < 1 {
		return Batch{}, ErrInvalidConcurrency
	}
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if total <= 0 {
		return Batch{Outcomes: []Outcome{}}, nil
	}

	gate := semaphore.NewWeighted(int64(concurrency))
	outcomes := make([]Outcome, total)

	var (
		wg          sync.WaitGroup
		admitErr    error
		start       = time.Now()
		dispatchLog = d.logger.With(zap.Int("total", total), zap.Int("concurrency", concurrency))
	)
	dispatchLog.Debug("dispatch started")

	for i := 0; i < total; i++ {
		if admitErr = gate.Acquire(ctx, 1); admitErr != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer gate.Release(1)

			d.observer.RequestStarted(i)
			out := d.exec.Execute(ctx, i)
			d.observer.RequestFinished(out)
			outcomes[i] = out
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	if admitErr == nil {
		admitErr = ctx.Err()
	}
	if admitErr != nil {
		dispatchLog.Debug("dispatch cancelled", zap.Duration("elapsed", elapsed), zap.Error(admitErr))
		return Batch{}, admitErr
	}

	dispatchLog.Debug("dispatch finished", zap.Duration("elapsed", elapsed))
	return Batch{Outcomes: outcomes, Elapsed: elapsed}, nil
}
