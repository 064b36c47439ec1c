// Package cli renders runs and sweeps as plain console output.
package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"sweepq/internal/stats"
	"sweepq/internal/sweep"
	"sweepq/internal/tui/styles"
)

const rule = "======================================================================"

// Printer writes reports to w. Styling follows w: a file or buffer gets plain text.
type Printer struct {
	w      io.Writer
	title  lipgloss.Style
	good   lipgloss.Style
	bad    lipgloss.Style
	subtle lipgloss.Style
	now    func() time.Time
}

func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:      w,
		title:  r.NewStyle().Foreground(styles.ColorPrimary).Bold(true),
		good:   r.NewStyle().Foreground(styles.ColorSecondary).Bold(true),
		bad:    r.NewStyle().Foreground(styles.ColorError),
		subtle: r.NewStyle().Foreground(styles.ColorSubtle),
		now:    time.Now,
	}
}

func (p *Printer) Writer() io.Writer { return p.w }

func (p *Printer) Header(target string, concurrency, total int) {
	fmt.Fprintf(p.w, "\n%s\n", p.title.Render(fmt.Sprintf("Testing %s with %d concurrent connections", target, concurrency)))
	fmt.Fprintf(p.w, "Total requests: %d\n", total)
	fmt.Fprintf(p.w, "Started at: %s\n", p.now().Format("15:04:05"))
}

func (p *Printer) Summary(s stats.Summary) {
	fmt.Fprintf(p.w, "\n%s\n", p.title.Render("Results:"))
	fmt.Fprintf(p.w, "Total time: %.2f seconds\n", s.TotalElapsed.Seconds())
	fmt.Fprintf(p.w, "Successful requests: %d (%.1f%%)\n", s.SuccessCount, s.SuccessRate()*100)
	fmt.Fprintf(p.w, "Failed requests: %d (%.1f%%)\n", s.FailureCount, s.FailureRate()*100)
	fmt.Fprintf(p.w, "Requests per second: %.2f\n", s.RequestsPerSecond)
	fmt.Fprintf(p.w, "Average response time: %.2f ms\n", millis(s.AvgLatency))
	fmt.Fprintf(p.w, "Min response time: %.2f ms\n", millis(s.MinLatency))
	fmt.Fprintf(p.w, "Max response time: %.2f ms\n", millis(s.MaxLatency))
	if s.SuccessCount > 0 {
		fmt.Fprintf(p.w, "P50 / P90 / P99: %.2f / %.2f / %.2f ms\n",
			millis(s.P50Latency), millis(s.P90Latency), millis(s.P99Latency))
	}

	if len(s.Errors) > 0 {
		fmt.Fprintf(p.w, "\n%s\n", p.bad.Render("Error summary:"))
		for _, e := range sortedErrors(s.Errors) {
			fmt.Fprintf(p.w, "  %s: %d\n", e.key, e.count)
		}
	}
	fmt.Fprintf(p.w, "Finished at: %s\n", p.now().Format("15:04:05"))
}

func (p *Printer) Waiting(d time.Duration) {
	fmt.Fprintf(p.w, "\n%s\n\n", p.subtle.Render(fmt.Sprintf("Waiting %s before next test...", d)))
}

// Comparison prints one line per round followed by the selection.
func (p *Printer) Comparison(res sweep.Result, minSuccess float64) {
	fmt.Fprintf(p.w, "\n%s\n", p.title.Render("=== Concurrency Comparison ==="))
	fmt.Fprintln(p.w, "Concurrency | Success Rate | RPS    | Avg Time (ms)")
	fmt.Fprintln(p.w, strings.Repeat("-", 48))
	for _, r := range res.Rounds {
		fmt.Fprintf(p.w, "%11d | %11.1f%% | %6.2f | %12.2f\n",
			r.Concurrency, r.SuccessRate()*100, r.RequestsPerSecond, millis(r.AvgLatency))
	}

	if res.Found {
		fmt.Fprintf(p.w, "\n%s\n", p.good.Render(fmt.Sprintf("Optimal concurrency level: %d (achieving %.2f RPS)",
			res.Optimal.Concurrency, res.Optimal.RequestsPerSecond)))
		return
	}
	fmt.Fprintf(p.w, "\n%s\n", p.bad.Render(fmt.Sprintf("No optimal concurrency level found with >=%s success rate",
		percent(minSuccess))))
}

func (p *Printer) Exported(files []string) {
	fmt.Fprintf(p.w, "\n%s\n", p.subtle.Render("Reports saved to "+strings.Join(files, ", ")))
}

func (p *Printer) Interrupted(completed int) {
	fmt.Fprintf(p.w, "\n%s\n", p.bad.Render(fmt.Sprintf("Interrupted after %d completed round(s)", completed)))
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func percent(ratio float64) string {
	s := fmt.Sprintf("%.1f", ratio*100)
	s = strings.TrimSuffix(s, ".0")
	return s + "%"
}

type errorCount struct {
	key   string
	count int
}

// sortedErrors orders by count, most frequent first, then by key.
func sortedErrors(m map[string]int) []errorCount {
	out := make([]errorCount, 0, len(m))
	for k, v := range m {
		out = append(out, errorCount{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}
