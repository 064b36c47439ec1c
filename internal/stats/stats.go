// Package stats reduces a batch of request outcomes into a run summary.
package stats

import (
	"fmt"
	"time"

	"sweepq/internal/runner"
)

// Summary describes one run at a fixed concurrency level.
// Latency figures cover successful requests only and are zero when there were none.
type Summary struct {
	Concurrency       int            `json:"concurrency"`
	TotalRequests     int            `json:"total_requests"`
	SuccessCount      int            `json:"success"`
	FailureCount      int            `json:"failure"`
	TotalElapsed      time.Duration  `json:"total_elapsed"`
	RequestsPerSecond float64        `json:"rps"`
	AvgLatency        time.Duration  `json:"avg_latency"`
	MinLatency        time.Duration  `json:"min_latency"`
	MaxLatency        time.Duration  `json:"max_latency"`
	P50Latency        time.Duration  `json:"p50_latency"`
	P90Latency        time.Duration  `json:"p90_latency"`
	P99Latency        time.Duration  `json:"p99_latency"`
	Errors            map[string]int `json:"errors"`
	StatusCodes       map[int]int    `json:"status_codes"`
}

// SuccessRate is the fraction of requests that succeeded, in 0..1.
func (s Summary) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.TotalRequests)
}

// FailureRate is the fraction of requests that failed, in 0..1.
func (s Summary) FailureRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.FailureCount) / float64(s.TotalRequests)
}

// ErrorKey is the histogram bucket a failed outcome is counted under.
// Distinct errors with the same text share a bucket.
func ErrorKey(o runner.Outcome) string {
	if o.Err != "" {
		return o.Err
	}
	return fmt.Sprintf("HTTP %d", o.Status)
}

// Summarize reduces outcomes collected at the given concurrency over batchElapsed.
func Summarize(outcomes []runner.Outcome, concurrency int, batchElapsed time.Duration) Summary {
	s := Summary{
		Concurrency:   concurrency,
		TotalRequests: len(outcomes),
		TotalElapsed:  batchElapsed,
		Errors:        make(map[string]int),
		StatusCodes:   make(map[int]int),
	}

	hist := NewSafeHistogram()
	var total time.Duration
	for _, o := range outcomes {
		if o.Status != 0 {
			s.StatusCodes[o.Status]++
		}
		if !o.Success {
			s.FailureCount++
			s.Errors[ErrorKey(o)]++
			continue
		}

		s.SuccessCount++
		total += o.Elapsed
		hist.Record(o.Elapsed)
		if s.SuccessCount == 1 || o.Elapsed < s.MinLatency {
			s.MinLatency = o.Elapsed
		}
		if o.Elapsed > s.MaxLatency {
			s.MaxLatency = o.Elapsed
		}
	}

	if s.SuccessCount > 0 {
		s.AvgLatency = total / time.Duration(s.SuccessCount)
		s.P50Latency = hist.Quantile(50)
		s.P90Latency = hist.Quantile(90)
		s.P99Latency = hist.Quantile(99)
	}
	if batchElapsed > 0 {
		s.RequestsPerSecond = float64(s.SuccessCount) / batchElapsed.Seconds()
	}
	return s
}
