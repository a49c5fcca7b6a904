package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/posqueue/internal/bootstrap"
	"github.com/cassiomorais/posqueue/internal/infrastructure/config"
	"github.com/cassiomorais/posqueue/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewServeCommand runs the queue daemon in the foreground.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var console bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the queue, sync engine and control API",
		Long: `Run the terminal queue in the foreground until SIGINT or SIGTERM.

Transactions are stored locally and submitted whenever connectivity is
available. On shutdown the current submission finishes before exit.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts, console)
		},
	}

	cmd.Flags().BoolVar(&console, "console", false, "human-readable log output")

	return cmd
}

func runServe(cmd *cobra.Command, opts *RootOptions, console bool) error {
	f := opts.formatter(cmd)

	cfg, err := config.LoadFile(opts.ConfigPath)
	if err != nil {
		f.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load config", err)
	}

	level := cfg.Observability.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	var logger zerolog.Logger
	if console {
		logger = observability.InitConsoleLogger(level, cmd.ErrOrStderr())
	} else {
		logger = observability.InitLogger(level, cmd.ErrOrStderr())
	}
	logger.Info().Str("instance_id", cfg.InstanceID).Str("store", cfg.Store.Driver).Msg("Starting posqueue")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start")
		return WrapExitError(ExitFailure, "bootstrap", err)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil && err != context.Canceled {
		logger.Error().Err(err).Msg("Stopped with error")
		return WrapExitError(ExitFailure, "serve", err)
	}
	logger.Info().Msg("posqueue stopped")
	return nil
}
