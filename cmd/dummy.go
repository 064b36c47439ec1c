package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sweepq/internal/config"
	"sweepq/internal/dummy"
	"sweepq/internal/logging"
)

func newDummyCmd(v *viper.Viper) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "dummy",
		Short: "Run a local target server with endpoints of known latency",
		Long: `Serves /fast, /medium, /slow, /spike, /error, /json and /status/{code}
until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lc := logging.DefaultConfig()
			lc.Level = v.GetString(config.KeyLogLevel)
			lc.Encoding = v.GetString(config.KeyLogFormat)
			lc.Development = v.GetBool(config.KeyDebug)
			logger, err := logging.New(lc)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return dummy.Run(ctx, dummy.ServerConfig{Port: port}, logging.Component(logger, "dummy"))
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on")
	return cmd
}
