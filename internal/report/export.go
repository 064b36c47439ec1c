// Package report writes the summaries of the current run to disk.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"sweepq/internal/stats"
	"sweepq/internal/sweep"
)

var csvHeader = []string{
	"concurrency", "requests", "success", "failure", "successRate",
	"elapsedMs", "rps", "avgMs", "minMs", "maxMs", "p50Ms", "p90Ms", "p99Ms", "optimal",
}

// ExportCSV writes one row per round. The optimal column is true for the
// round that result selected.
func ExportCSV(result sweep.Result, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}

	for _, s := range result.Rounds {
		optimal := result.Found && s.Concurrency == result.Optimal.Concurrency
		record := []string{
			strconv.Itoa(s.Concurrency),
			strconv.Itoa(s.TotalRequests),
			strconv.Itoa(s.SuccessCount),
			strconv.Itoa(s.FailureCount),
			strconv.FormatFloat(s.SuccessRate(), 'f', 4, 64),
			ms(s.TotalElapsed.Seconds() * 1000),
			strconv.FormatFloat(s.RequestsPerSecond, 'f', 2, 64),
			ms(float64(s.AvgLatency.Microseconds()) / 1000),
			ms(float64(s.MinLatency.Microseconds()) / 1000),
			ms(float64(s.MaxLatency.Microseconds()) / 1000),
			ms(float64(s.P50Latency.Microseconds()) / 1000),
			ms(float64(s.P90Latency.Microseconds()) / 1000),
			ms(float64(s.P99Latency.Microseconds()) / 1000),
			strconv.FormatBool(optimal),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func ms(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ExportJSON writes the whole result, selection included.
func ExportJSON(result sweep.Result, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// Write exports result to <prefix>.csv and <prefix>.json.
func Write(result sweep.Result, prefix string) ([]string, error) {
	files := []string{prefix + ".csv", prefix + ".json"}
	if err := ExportCSV(result, files[0]); err != nil {
		return nil, fmt.Errorf("export csv: %w", err)
	}
	if err := ExportJSON(result, files[1]); err != nil {
		return nil, fmt.Errorf("export json: %w", err)
	}
	return files, nil
}

// Single wraps a one-off run so it exports like a one-round sweep.
func Single(id string, s stats.Summary) sweep.Result {
	return sweep.Result{ID: id, Rounds: []stats.Summary{s}}
}
