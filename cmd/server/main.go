// Package main implements the entry point of the issue tracker API server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/stxlabs/tracker-api/internal/config"
	"github.com/stxlabs/tracker-api/internal/platform/logger"
)

// version is set at build time using -ldflags.
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime carries what every subcommand needs once the root command has
// loaded the configuration.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	rt := &runtime{}

	root := &cobra.Command{
		Use:           "tracker-api",
		Short:         "Issue tracker API server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			l, err := logger.Setup(cfg.Server)
			if err != nil {
				return fmt.Errorf("failed to set up logger: %w", err)
			}

			l.Info("server configuration loaded",
				slog.Int("port", cfg.Server.Port),
				slog.String("log_level", cfg.Server.LogLevel),
				slog.String("mail_transport", cfg.Mail.Transport))

			rt.cfg = cfg
			rt.logger = l
			return nil
		},
	}

	root.AddCommand(newServeCommand(rt), newMigrateCommand(rt))
	return root
}

func newServeCommand(rt *runtime) *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the task runner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			db, err := openDatabase(ctx, rt.cfg.Database.URL, rt.cfg.Task.WorkerCount, rt.logger)
			if err != nil {
				return err
			}

			if !skipMigrations {
				if err := runMigrations(ctx, db, "up", nil, rt.logger); err != nil {
					_ = db.Close()
					return err
				}
			}

			app, err := newApplication(ctx, rt.cfg, rt.logger, db)
			if err != nil {
				_ = db.Close()
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return app.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on startup")
	return cmd
}

func newMigrateCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version|reset|create NAME]",
		Short:     "Manage the database schema",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: migrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateMigrationArgs(args); err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := openDatabase(ctx, rt.cfg.Database.URL, 1, rt.logger)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			return runMigrations(ctx, db, args[0], args[1:], rt.logger)
		},
	}
}
