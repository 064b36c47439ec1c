package cmd

import (
	"context"
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sweepq/internal/cli"
	"sweepq/internal/config"
	"sweepq/internal/logging"
	"sweepq/internal/metrics"
	"sweepq/internal/report"
	"sweepq/internal/runner"
	"sweepq/internal/stats"
	"sweepq/internal/sweep"
	"sweepq/internal/tui/live"
)

type streams struct {
	out io.Writer
	err io.Writer
}

// job is the wiring shared by console and live runs.
type job struct {
	cfg        config.Config
	exec       *runner.Executor
	dispatcher *runner.Dispatcher
	hooks      []func(sweep.Event)
	logger     *zap.Logger
}

func (j *job) hook(e sweep.Event) {
	for _, h := range j.hooks {
		h(e)
	}
}

func run(ctx context.Context, cfg config.Config, s streams, logger *zap.Logger) error {
	client := runner.NewHTTPClient(runner.ClientOptions{
		Timeout:  cfg.Timeout,
		MaxConns: cfg.PeakConcurrency(),
		Insecure: cfg.Insecure,
	})
	exec := runner.NewExecutor(client, cfg.URL)
	defer exec.CloseIdle()

	var observers []runner.Observer
	j := &job{cfg: cfg, exec: exec, logger: logger}

	if cfg.MetricsAddr != "" {
		collector := metrics.NewCollector()
		observers = append(observers, collector)
		j.hooks = append(j.hooks, func(e sweep.Event) {
			if e.Kind == sweep.RoundStarted {
				collector.SetConcurrency(e.Concurrency)
			}
		})
		go func() {
			if err := collector.Serve(ctx, cfg.MetricsAddr, logging.Component(logger, "metrics")); err != nil {
				logger.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	printer := cli.NewPrinter(s.out)
	var (
		res sweep.Result
		err error
	)
	if cfg.Live {
		res, err = j.runLive(ctx, observers, printer)
	} else {
		res, err = j.runConsole(ctx, observers, printer, s.err)
	}

	if cfg.FindOptimal {
		printer.Comparison(res, cfg.MinSuccess)
	}

	if cfg.OutPrefix != "" && len(res.Rounds) > 0 {
		files, werr := report.Write(res, cfg.OutPrefix)
		if werr != nil {
			logger.Error("export failed", zap.Error(werr))
		} else {
			printer.Exported(files)
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			printer.Interrupted(len(res.Rounds))
			return errInterrupted
		}
		return err
	}
	return nil
}

func (j *job) newDispatcher(observers []runner.Observer) {
	opts := []runner.DispatcherOption{runner.WithLogger(logging.Component(j.logger, "dispatcher"))}
	for _, o := range observers {
		opts = append(opts, runner.WithObserver(o))
	}
	j.dispatcher = runner.NewDispatcher(j.exec, opts...)
}

func (j *job) runConsole(ctx context.Context, observers []runner.Observer, printer *cli.Printer, progressOut io.Writer) (sweep.Result, error) {
	progress := cli.NewProgress(progressOut)
	console := &cli.Console{Printer: printer, Progress: progress, Target: j.exec.Target()}
	j.hooks = append(j.hooks, console.Hook)
	j.newDispatcher(append(observers, progress))

	res, err := j.execute(ctx)
	if err != nil {
		console.Abort()
	}
	return res, err
}

func (j *job) runLive(ctx context.Context, observers []runner.Observer, printer *cli.Printer) (sweep.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rounds := 1
	if j.cfg.FindOptimal {
		rounds = j.cfg.Plan().Count()
	}

	var reporter *live.Reporter
	model := live.NewModel(live.Options{
		Target:     j.exec.Target(),
		Rounds:     rounds,
		MinSuccess: j.cfg.MinSuccess,
		Snapshot:   func() live.Snapshot { return reporter.Snapshot() },
		Cancel:     cancel,
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	reporter = live.NewReporter(program)

	j.hooks = append(j.hooks, reporter.Hook)
	j.newDispatcher(append(observers, reporter))

	type outcome struct {
		res sweep.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := j.execute(ctx)
		reporter.Finish(res, err)
		done <- outcome{res, err}
	}()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		j.logger.Error("live view failed", zap.Error(err))
	}
	// Quitting the view stops the run.
	cancel()
	o := <-done

	for _, r := range o.res.Rounds {
		printer.Header(j.exec.Target(), r.Concurrency, r.TotalRequests)
		printer.Summary(r)
	}
	return o.res, o.err
}

// execute runs a single batch or a full sweep depending on the config.
func (j *job) execute(ctx context.Context) (sweep.Result, error) {
	if j.cfg.FindOptimal {
		s := sweep.New(j.dispatcher,
			sweep.WithCooldown(j.cfg.Cooldown),
			sweep.WithMinSuccess(j.cfg.MinSuccess),
			sweep.WithHook(j.hook),
			sweep.WithLogger(logging.Component(j.logger, "sweep")),
			sweep.WithBetweenRounds(j.exec.CloseIdle),
		)
		return s.Sweep(ctx, j.cfg.Plan())
	}

	id := uuid.NewString()
	c, n := j.cfg.Concurrency, j.cfg.Requests
	j.hook(sweep.Event{Kind: sweep.RoundStarted, Concurrency: c, Requests: n})
	batch, err := j.dispatcher.Dispatch(ctx, n, c)
	if err != nil {
		return sweep.Result{ID: id}, err
	}
	summary := stats.Summarize(batch.Outcomes, c, batch.Elapsed)
	j.hook(sweep.Event{Kind: sweep.RoundFinished, Concurrency: c, Requests: n, Summary: summary})
	j.logger.Info("run finished",
		zap.String("run_id", id),
		zap.Int("concurrency", c),
		zap.Int("success", summary.SuccessCount),
		zap.Int("failure", summary.FailureCount),
		zap.Float64("rps", summary.RequestsPerSecond),
	)
	return report.Single(id, summary), nil
}
