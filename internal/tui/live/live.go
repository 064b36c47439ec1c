// Package live renders a running load test or sweep as a bubbletea program.
package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sweepq/internal/stats"
	"sweepq/internal/sweep"
	"sweepq/internal/tui/components"
	"sweepq/internal/tui/styles"
)

const tickInterval = 200 * time.Millisecond

type (
	RoundStartedMsg struct {
		Round       int
		Concurrency int
		Requests    int
	}
	RoundFinishedMsg struct {
		Round   int
		Summary stats.Summary
	}
	CoolingDownMsg struct {
		Next     int
		Cooldown time.Duration
	}
	FinishedMsg struct {
		Result sweep.Result
		Err    error
	}

	tickMsg time.Time
)

type Options struct {
	Target string
	// Rounds is the number of planned rounds; 1 for a single run.
	Rounds     int
	MinSuccess float64
	Snapshot   func() Snapshot
	// Cancel is called when the user quits.
	Cancel func()
}

type Model struct {
	opts Options

	progress progress.Model
	spinner  spinner.Model
	table    table.Model
	rps      components.Sparkline

	current  Snapshot
	phase    string
	rounds   []stats.Summary
	quitting bool
	width    int
}

func NewModel(opts Options) Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Concurrency", Width: 12},
			{Title: "Success", Width: 9},
			{Title: "RPS", Width: 10},
			{Title: "Avg (ms)", Width: 10},
			{Title: "P90 (ms)", Width: 10},
		}),
		table.WithHeight(8),
	)
	ts := table.DefaultStyles()
	ts.Header = ts.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.ColorBorder).
		BorderBottom(true).
		Bold(false)
	ts.Selected = lipgloss.NewStyle()
	t.SetStyles(ts)

	return Model{
		opts:     opts,
		progress: progress.New(progress.WithDefaultGradient()),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Active)),
		table:    t,
		rps:      components.NewSparkline(40, "RPS per round", styles.Active),
		phase:    "starting",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if m.opts.Cancel != nil {
				m.opts.Cancel()
			}
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = max(msg.Width-4, 10)
		m.table.SetWidth(max(msg.Width-4, 20))
		return m, nil

	case tickMsg:
		if m.opts.Snapshot != nil {
			m.current = m.opts.Snapshot()
		}
		return m, tea.Batch(m.progress.SetPercent(m.percent()), tickCmd())

	case RoundStartedMsg:
		m.phase = fmt.Sprintf("Round %d/%d: %d concurrent, %d requests",
			msg.Round+1, max(m.opts.Rounds, msg.Round+1), msg.Concurrency, msg.Requests)
		m.current = Snapshot{Total: int64(msg.Requests)}
		return m, m.progress.SetPercent(0)

	case RoundFinishedMsg:
		m.rounds = append(m.rounds, msg.Summary)
		m.table.SetRows(m.rows())
		m.rps.Add(msg.Summary.RequestsPerSecond)
		m.phase = fmt.Sprintf("Round %d finished at %.2f RPS", msg.Round+1, msg.Summary.RequestsPerSecond)
		return m, m.progress.SetPercent(1)

	case CoolingDownMsg:
		m.phase = fmt.Sprintf("Waiting %s before %d concurrent", msg.Cooldown, msg.Next)
		return m, nil

	case FinishedMsg:
		if msg.Err == nil {
			m.phase = "done"
		}
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m Model) percent() float64 {
	if m.current.Total <= 0 {
		return 0
	}
	return min(float64(m.current.Finished())/float64(m.current.Total), 1)
}

func (m Model) rows() []table.Row {
	rows := make([]table.Row, len(m.rounds))
	for i, r := range m.rounds {
		rows[i] = table.Row{
			fmt.Sprintf("%d", r.Concurrency),
			fmt.Sprintf("%.1f%%", r.SuccessRate()*100),
			fmt.Sprintf("%.2f", r.RequestsPerSecond),
			fmt.Sprintf("%.2f", ms(r.AvgLatency)),
			fmt.Sprintf("%.2f", ms(r.P90Latency)),
		}
	}
	return rows
}

// Rounds returns the summaries received so far.
func (m Model) Rounds() []stats.Summary { return m.rounds }

func (m Model) Phase() string { return m.phase }

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(styles.Title.Render("sweepq " + m.opts.Target))
	s.WriteString("\n\n")
	s.WriteString(m.spinner.View() + " " + styles.Text.Render(m.phase))
	s.WriteString("\n\n")

	c := m.current
	errRate := 0.0
	if c.Finished() > 0 {
		errRate = float64(c.Failed) / float64(c.Finished()) * 100
	}
	rps := 0.0
	if c.Elapsed > 0 {
		rps = float64(c.OK) / c.Elapsed.Seconds()
	}

	col1 := fmt.Sprintf("REQ: %d/%d\nINF: %d", c.Finished(), c.Total, c.InFlight)
	col2 := styles.ErrorRate(errRate).Render(fmt.Sprintf("ERR: %.2f%%\nFAIL: %d", errRate, c.Failed))
	col3 := fmt.Sprintf("RPS: %s\nOK: %d", styles.Value.Render(fmt.Sprintf("%.1f", rps)), c.OK)
	col4 := fmt.Sprintf("P50: %.2f ms\nP90: %.2f ms\nP99: %.2f ms", ms(c.P50), ms(c.P90), ms(c.P99))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(col2),
		styles.Box.Render(col3),
		styles.Box.Render(col4),
	))
	s.WriteString("\n\n")
	s.WriteString(m.progress.View())
	s.WriteString("\n\n")

	if len(m.rounds) > 0 {
		s.WriteString(styles.Box.Render(m.table.View()))
		s.WriteString("\n")
		if best, ok := sweep.SelectOptimal(m.rounds, m.opts.MinSuccess); ok {
			s.WriteString(styles.Success.Render(fmt.Sprintf("Best so far: %d concurrent (%.2f RPS)",
				best.Concurrency, best.RequestsPerSecond)))
		} else {
			s.WriteString(styles.Warn.Render("No round meets the success threshold yet"))
		}
		s.WriteString("\n")
		if len(m.rounds) > 1 {
			s.WriteString(styles.Box.Render(m.rps.View()))
			s.WriteString("\n")
		}
	}

	s.WriteString("\n")
	s.WriteString(styles.RenderKey("q", "quit"))
	return s.String()
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
