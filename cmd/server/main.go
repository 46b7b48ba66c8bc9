package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/security-monitoring-service/internal/config"
	"github.com/sandeepkv93/security-monitoring-service/internal/di"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"
	"github.com/sandeepkv93/security-monitoring-service/internal/repository"
	"github.com/sandeepkv93/security-monitoring-service/internal/tools/common"
	"github.com/sandeepkv93/security-monitoring-service/internal/tools/loadgen"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "security-monitoring-service",
		Short:         "Security monitoring and automated response service",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return common.LoadEnvFile(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional KEY=VALUE file applied before the environment is read")
	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newSweepSessionsCommand(),
		newCreateUserCommand(),
		loadgen.NewCommand(),
	)
	return root
}

// bootstrap loads configuration, the process logger and telemetry. Callers own the
// returned runtime and must shut it down.
func bootstrap(ctx context.Context) (*config.Config, *slog.Logger, *observability.Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, lp, err := observability.NewLogger(ctx, cfg, os.Stdout)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)
	runtime, err := observability.InitRuntime(ctx, cfg, logger, lp)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, runtime, nil
}

func newServeCommand() *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background security workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, runtime, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			stack, cleanup, err := di.InitializeStack(ctx, cfg, logger)
			if err != nil {
				_ = runtime.Shutdown(context.WithoutCancel(ctx))
				return fmt.Errorf("initialize security stack: %w", err)
			}
			defer cleanup()

			if !skipMigrate {
				if err := repository.Migrate(stack.DB); err != nil {
					_ = runtime.Shutdown(context.WithoutCancel(ctx))
					return err
				}
			}
			application, err := di.InitializeApp(cfg, logger, runtime, stack)
			if err != nil {
				_ = runtime.Shutdown(context.WithoutCancel(ctx))
				return err
			}
			return application.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not run schema migration on startup")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, runtime, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = runtime.Shutdown(context.WithoutCancel(cmd.Context())) }()

			db, err := repository.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := repository.Migrate(db); err != nil {
				return err
			}
			logger.Info("database migrated", "driver", cfg.DatabaseDriver)
			return nil
		},
	}
}

func newSweepSessionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-sessions",
		Short: "Delete expired sessions and stale login attempts once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, runtime, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = runtime.Shutdown(context.WithoutCancel(ctx)) }()

			stack, cleanup, err := di.InitializeStack(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			if !stack.Sweeper.SweepOnce(ctx) {
				return fmt.Errorf("sweep already running")
			}
			return nil
		},
	}
}

func newCreateUserCommand() *cobra.Command {
	var username, email, password, role string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user account, including administrators",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, runtime, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = runtime.Shutdown(context.WithoutCancel(ctx)) }()

			stack, cleanup, err := di.InitializeStack(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			user, err := stack.Auth.RegisterUser(ctx, username, email, password, role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user id=%d username=%s role=%s\n", user.ID, user.Username, user.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&email, "email", "", "contact address")
	cmd.Flags().StringVar(&password, "password", "", "initial password, checked against the password policy")
	cmd.Flags().StringVar(&role, "role", "user", "user or admin")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
