// Package main provides the CLI entrypoint of the ticket page watcher.
// It wires subcommands (watch, check, notify-test, env), loads configuration
// and initializes logging.
package main

import (
	"context"
	"fmt"
	"os"
	"ticketwatch/internal/config"
	"ticketwatch/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries what the root command resolves before any subcommand runs.
type app struct {
	configPath string
	overrides  config.Overrides

	cfg *config.Config
	ctx context.Context //nolint: containedctx
}

// setup loads, overrides and validates the configuration, then builds the
// logger. Any failure here is fatal.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	cfg.Apply(a.overrides)
	if err := cfg.Validate(); err != nil {
		return err
	}

	l, err := logger.New(logger.Options{
		Environment: cfg.Environment,
		Debug:       cfg.LogDebug.Bool(),
		File:        cfg.LogFile,
	})
	if err != nil {
		return fmt.Errorf("could not set up logging: %w", err)
	}

	a.cfg = cfg
	a.ctx = logger.WithLogger(cmd.Context(), l)

	logger.Debug(a.ctx, "config loaded",
		zap.String("url", cfg.Target.URL),
		zap.Int("interval", cfg.Polling.IntervalSeconds),
		zap.Any("channels", cfg.Channels()))

	return nil
}

func (a *app) sync() {
	if a.ctx != nil {
		_ = logger.Get(a.ctx).Sync()
	}
}

// main sets up the root Cobra command and its persistent flags, registers
// subcommands and executes the CLI.
func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:               "ticketwatch",
		Short:             "Watches a ticket page and notifies when its content changes",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "optional YAML config file, environment variables take precedence")
	flags.BoolVar(&a.overrides.Debug, "debug", false, "log debug messages")
	flags.BoolVar(&a.overrides.Email, "email", false, "enable email notifications")
	flags.BoolVar(&a.overrides.SMS, "sms", false, "enable SMS notifications")
	flags.StringVar(&a.overrides.LogFile, "log-file", "", "also write logs to this file")

	rootCmd.AddCommand(
		watchCommand(a),
		checkCommand(a),
		notifyTestCommand(a),
		envCommand(),
	)

	defer func() {
		if p := recover(); p != nil {
			if a.ctx != nil {
				logger.Error(a.ctx, "captured panic, exiting...", zap.Any("panic", p))
			}
			a.sync()

			panic(p)
		}
	}()

	err := rootCmd.ExecuteContext(context.Background())
	a.sync()
	if err != nil {
		os.Exit(1) //nolint: gocritic
	}
}
