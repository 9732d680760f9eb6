// Command repcounter counts push-ups from a webcam and serves the live count.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ayusman/repcounter/internal/config"
	"github.com/ayusman/repcounter/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Error("repcounter failed")
		stop()
		os.Exit(1)
	}
}

// cli holds what the root command resolves before any subcommand runs.
type cli struct {
	configPath string
	cfg        *config.Config
	logCloser  io.Closer
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "repcounter",
		Short:         "Push-up repetition counter",
		Long:          `repcounter watches a webcam, tracks the elbow angle of one arm and counts push-ups.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logCloser = logging.Setup(logging.SetupParams{
				LogFileName:   cfg.Log.File,
				LogToStdout:   cfg.Log.Stdout || cfg.Log.File == "",
				LogLevel:      cfg.Log.Level,
				LogFormatJSON: cfg.Log.JSON,
			})
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if c.logCloser != nil {
				c.logCloser.Close()
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv("REPCOUNT_CONFIG"), "path to the YAML config file")

	rootCmd.AddCommand(
		newServeCmd(c),
		newTrayCmd(c),
		newReplayCmd(c),
		newSessionsCmd(c),
		newDevicesCmd(c),
	)

	return rootCmd
}
