package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"sweepq/internal/banner"
	"sweepq/internal/config"
	"sweepq/internal/logging"
	"sweepq/internal/runner"
)

// errInterrupted is returned when a run was cut short by a signal or by
// quitting the live view.
var errInterrupted = errors.New("interrupted")

const keyConfig = "config"

func Execute() {
	err := NewRootCmd().ExecuteContext(context.Background())
	switch {
	case err == nil:
	case errors.Is(err, errInterrupted):
		os.Exit(130)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	v := viper.New()
	d := config.Default()

	rootCmd := &cobra.Command{
		Use:   "sweepq",
		Short: "sweepq - concurrent HTTP load tester",
		Long: `
sweepq fires a fixed number of GET requests at a URL with bounded concurrency
and reports throughput, latency and failures.

With --find-optimal it repeats the run at increasing concurrency levels and
picks the level with the highest throughput that still meets the success rate.`,
		Version:       runner.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger, err := logging.New(loggerConfig(cfg))
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, streams{out: cmd.OutOrStdout(), err: cmd.ErrOrStderr()}, logger)
		},
	}

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd == rootCmd {
			fmt.Fprintln(cmd.OutOrStdout(), banner.GetString())
		}
		cmd.Usage()
	})

	pf := rootCmd.PersistentFlags()
	pf.String(keyConfig, "", "config file (default is $HOME/.sweepq.yaml)")
	pf.String(config.KeyLogLevel, d.LogLevel, "log level (debug, info, warn, error)")
	pf.String(config.KeyLogFormat, d.LogFormat, "log encoding (console or json)")
	pf.Bool(config.KeyDebug, false, "development logging at debug level")

	f := rootCmd.Flags()
	f.StringP(config.KeyURL, "u", "", "target URL (required)")
	f.IntP(config.KeyConcurrency, "c", d.Concurrency, "concurrent requests for a single run")
	f.IntP(config.KeyRequests, "n", d.Requests, "requests per run or sweep round")
	f.Bool(config.KeyFindOptimal, false, "sweep concurrency levels and pick the best")
	f.Int(config.KeyStart, d.Start, "first sweep concurrency level")
	f.Int(config.KeyMax, d.Max, "highest sweep concurrency level")
	f.Int(config.KeyStep, d.Step, "increment between sweep levels")
	f.Duration(config.KeyTimeout, d.Timeout, "per-request timeout")
	f.Duration(config.KeyCooldown, d.Cooldown, "pause between sweep rounds")
	f.Float64(config.KeyMinSuccess, d.MinSuccess, "success rate a sweep round needs to qualify")
	f.Bool(config.KeyInsecure, false, "skip TLS certificate verification")
	f.StringP(config.KeyOut, "o", "", "write <prefix>.csv and <prefix>.json reports")
	f.Bool(config.KeyLive, false, "show a live dashboard instead of the progress line")
	f.String(config.KeyMetricsAddr, "", "serve Prometheus metrics on this address while running")

	v.BindPFlags(pf)
	v.BindPFlags(f)
	config.SetDefaults(v)

	rootCmd.AddCommand(newDummyCmd(v))
	return rootCmd
}

// initConfig layers the config file and SWEEPQ_* environment under the flags.
func initConfig(v *viper.Viper) error {
	v.SetEnvPrefix("SWEEPQ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile := v.GetString(keyConfig); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	v.AddConfigPath(home)
	v.SetConfigType("yaml")
	v.SetConfigName(".sweepq")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// loggerConfig keeps the live dashboard clean: only errors are logged unless
// debugging.
func loggerConfig(cfg config.Config) logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = cfg.LogLevel
	lc.Development = cfg.Debug
	lc.Encoding = cfg.LogFormat
	if cfg.Live && !cfg.Debug {
		lc.Level = zap.ErrorLevel.String()
	}
	return lc
}
