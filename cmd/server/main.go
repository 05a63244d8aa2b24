package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/casthub/streamdash/internal/app"
	"github.com/casthub/streamdash/internal/config"
	"github.com/casthub/streamdash/internal/log"
)

func main() {
	var (
		configPath string
		overrides  = config.Default()
	)

	root := &cobra.Command{
		Use:           "streamdash-server",
		Short:         "Realtime backend for the streamdash creator dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := log.New(overrides.LogLevel)

			cfg, path, err := config.Load(logger, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Info().Str("config", path).Msg("configuration loaded")

			// Flags set explicitly win over file and env values.
			if cmd.Flags().Changed("addr") {
				cfg.Addr = overrides.Addr
			}
			if cmd.Flags().Changed("db") {
				cfg.DatabasePath = overrides.DatabasePath
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = overrides.LogLevel
			}
			if cmd.Flags().Changed("auth-timeout") {
				cfg.AuthTimeout = overrides.AuthTimeout
			}

			logger = log.New(cfg.LogLevel)

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info().Str("addr", cfg.Addr).Msg("starting streamdash server")
			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to config file")
	root.Flags().StringVar(&overrides.Addr, "addr", overrides.Addr, "HTTP listen address")
	root.Flags().StringVar(&overrides.DatabasePath, "db", overrides.DatabasePath, "path to sqlite database")
	root.Flags().StringVar(&overrides.LogLevel, "log-level", overrides.LogLevel, "log level (debug, info, warn, error)")
	root.Flags().DurationVar(&overrides.AuthTimeout, "auth-timeout", overrides.AuthTimeout, "disconnect unauthenticated connections after this duration (0 disables)")

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
