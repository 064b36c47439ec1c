package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// trackingDoer records how many requests are inside Do at once.
type trackingDoer struct {
	inflight atomic.Int64
	peak     atomic.Int64
	calls    atomic.Int64
	delay    time.Duration
	// fail returns a transport error for ids where it reports true.
	fail func(n int64) bool
}

func (d *trackingDoer) Do(req *http.Request) (*http.Response, error) {
	n := d.calls.Add(1)
	current := d.inflight.Add(1)
	defer d.inflight.Add(-1)

	for {
		old := d.peak.Load()
		if current <= old || d.peak.CompareAndSwap(old, current) {
			break
		}
	}

	select {
	case <-time.After(d.delay):
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}

	if d.fail != nil && d.fail(n) {
		return nil, errors.New("connection reset by peer")
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
		Request:    req,
	}, nil
}

func TestDispatchReturnsEveryID(t *testing.T) {
	tests := []struct {
		total       int
		concurrency int
	}{
		{1, 1},
		{10, 1},
		{10, 3},
		{50, 50},
		{5, 100},
		{200, 16},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d,c=%d", tt.total, tt.concurrency), func(t *testing.T) {
			doer := &trackingDoer{delay: time.Millisecond}
			d := NewDispatcher(NewExecutor(doer, "http://target.test/"), WithLogger(zaptest.NewLogger(t)))

			batch, err := d.Dispatch(context.Background(), tt.total, tt.concurrency)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(batch.Outcomes) != tt.total {
				t.Fatalf("got %d outcomes, want %d", len(batch.Outcomes), tt.total)
			}

			seen := make(map[int]bool, tt.total)
			for _, o := range batch.Outcomes {
				if o.ID < 0 || o.ID >= tt.total {
					t.Errorf("id %d out of range", o.ID)
				}
				if seen[o.ID] {
					t.Errorf("id %d seen twice", o.ID)
				}
				seen[o.ID] = true
			}
			if got := doer.calls.Load(); got != int64(tt.total) {
				t.Errorf("transport saw %d calls, want %d", got, tt.total)
			}
			if batch.Elapsed <= 0 {
				t.Error("expected positive batch elapsed")
			}
		})
	}
}

func TestDispatchNeverExceedsConcurrency(t *testing.T) {
	for _, c := range []int{1, 2, 5, 13} {
		t.Run(fmt.Sprintf("c=%d", c), func(t *testing.T) {
			doer := &trackingDoer{delay: 5 * time.Millisecond}
			d := NewDispatcher(NewExecutor(doer, "http://target.test/"))

			if _, err := d.Dispatch(context.Background(), c*6, c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if peak := doer.peak.Load(); peak > int64(c) {
				t.Errorf("peak in-flight = %d, exceeds %d", peak, c)
			}
			if c > 1 && doer.peak.Load() < 2 {
				t.Errorf("peak in-flight = %d, expected requests to overlap", doer.peak.Load())
			}
		})
	}
}

func TestDispatchKeepsGoingAfterFailures(t *testing.T) {
	doer := &trackingDoer{
		delay: time.Millisecond,
		fail:  func(n int64) bool { return n%2 == 0 },
	}
	d := NewDispatcher(NewExecutor(doer, "http://target.test/"))

	batch, err := d.Dispatch(context.Background(), 20, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch.Outcomes) != 20 {
		t.Fatalf("got %d outcomes, want 20", len(batch.Outcomes))
	}

	var ok, failed int
	for _, o := range batch.Outcomes {
		if o.Success {
			ok++
			continue
		}
		failed++
		if o.Err == "" {
			t.Errorf("failed outcome %d has no error", o.ID)
		}
	}
	if ok != 10 || failed != 10 {
		t.Errorf("ok=%d failed=%d, want 10/10", ok, failed)
	}
}

func TestDispatchZeroRequests(t *testing.T) {
	doer := &trackingDoer{}
	batch, err := NewDispatcher(NewExecutor(doer, "http://target.test/")).Dispatch(context.Background(), 0, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch.Outcomes) != 0 {
		t.Errorf("got %d outcomes, want 0", len(batch.Outcomes))
	}
	if doer.calls.Load() != 0 {
		t.Error("no request should be sent")
	}
}

func TestDispatchRejectsInvalidConcurrency(t *testing.T) {
	d := NewDispatcher(NewExecutor(&trackingDoer{}, "http://target.test/"))
	for _, c := range []int{0, -3} {
		if _, err := d.Dispatch(context.Background(), 10, c); !errors.Is(err, ErrInvalidConcurrency) {
			t.Errorf("concurrency %d: err = %v, want ErrInvalidConcurrency", c, err)
		}
	}
}

func TestDispatchCancel(t *testing.T) {
	doer := &trackingDoer{delay: time.Hour}
	d := NewDispatcher(NewExecutor(doer, "http://target.test/"))

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		batch Batch
		err   error
	}
	done := make(chan result, 1)
	go func() {
		b, err := d.Dispatch(ctx, 1000, 4)
		done <- result{b, err}
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case r := <-done:
		if !errors.Is(r.err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", r.err)
		}
		if r.batch.Outcomes != nil {
			t.Error("partial batch should be discarded")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not unwind after cancellation")
	}

	if calls := doer.calls.Load(); calls > 4 {
		t.Errorf("transport saw %d calls, want no more than the 4 admitted", calls)
	}
	if doer.inflight.Load() != 0 {
		t.Error("requests still in flight after dispatch returned")
	}
}

func TestDispatchAlreadyCancelled(t *testing.T) {
	doer := &trackingDoer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDispatcher(NewExecutor(doer, "http://target.test/")).Dispatch(ctx, 10, 2)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if doer.calls.Load() != 0 {
		t.Error("no request should be sent on a cancelled context")
	}
}

type countingObserver struct {
	started  atomic.Int64
	finished atomic.Int64
	failed   atomic.Int64
}

func (c *countingObserver) RequestStarted(int) { c.started.Add(1) }
func (c *countingObserver) RequestFinished(o Outcome) {
	c.finished.Add(1)
	if !o.Success {
		c.failed.Add(1)
	}
}

func TestDispatchNotifiesObservers(t *testing.T) {
	first, second := &countingObserver{}, &countingObserver{}
	doer := &trackingDoer{delay: time.Millisecond, fail: func(n int64) bool { return n <= 3 }}
	d := NewDispatcher(NewExecutor(doer, "http://target.test/"), WithObserver(first), WithObserver(second), WithObserver(nil))

	if _, err := d.Dispatch(context.Background(), 12, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, obs := range []*countingObserver{first, second} {
		if obs.started.Load() != 12 || obs.finished.Load() != 12 {
			t.Errorf("observer %d: started=%d finished=%d, want 12/12", i, obs.started.Load(), obs.finished.Load())
		}
		if obs.failed.Load() != 3 {
			t.Errorf("observer %d: failed=%d, want 3", i, obs.failed.Load())
		}
	}
}
