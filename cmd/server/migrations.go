package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/pressly/goose/v3"
	"github.com/stxlabs/tracker-api/internal/platform/postgres"
)

// projectRootEnv overrides the directory "migrate create" writes into.
const projectRootEnv = "TRACKER_PROJECT_ROOT"

var errProjectRootNotFound = errors.New("unable to find project root")

var migrationCommands = []string{"up", "down", "status", "version", "reset", "create"}

// slogGooseLogger adapts the goose logger to slog. Fatalf does not exit;
// the error is returned to the command instead.
type slogGooseLogger struct {
	logger *slog.Logger
}

func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func validateMigrationArgs(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing migration command, expected one of %v", migrationCommands)
	}
	if !slices.Contains(migrationCommands, args[0]) {
		return fmt.Errorf("unknown migration command %q, expected one of %v", args[0], migrationCommands)
	}
	if args[0] == "create" && len(args) != 2 {
		return fmt.Errorf("create requires a migration name")
	}
	if args[0] != "create" && len(args) > 1 {
		return fmt.Errorf("%s takes no arguments", args[0])
	}
	return nil
}

// runMigrations runs a goose command against the embedded migrations.
// "create" writes a new SQL file to the source tree instead.
func runMigrations(ctx context.Context, db *sql.DB, command string, args []string, logger *slog.Logger) error {
	log := logger.With(slog.String("component", "migrations"), slog.String("command", command))

	goose.SetLogger(&slogGooseLogger{logger: log})
	goose.SetTableName(postgres.MigrationTableName)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if command == "create" {
		goose.SetBaseFS(nil)
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		dir, err := findMigrationsDir(os.Getenv(projectRootEnv), wd)
		if err != nil {
			return err
		}
		if err := goose.Create(db, dir, args[0], "sql"); err != nil {
			return fmt.Errorf("failed to create migration: %w", err)
		}
		return nil
	}

	goose.SetBaseFS(postgres.Migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.RunContext(ctx, command, db, postgres.MigrationsDir, args...); err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	log.Info("migration command completed")
	return nil
}

// findMigrationsDir returns the migrations source directory. root wins when
// set; otherwise the project root is found by walking up from start to the
// nearest go.mod.
func findMigrationsDir(root, start string) (string, error) {
	if root == "" {
		dir := start
		for {
			if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
				root = dir
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				return "", fmt.Errorf("%w from %s", errProjectRootNotFound, start)
			}
			dir = parent
		}
	}

	migrations := filepath.Join(root, "internal", "platform", "postgres", postgres.MigrationsDir)
	info, err := os.Stat(migrations)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("migrations directory not found at %s", migrations)
	}
	return migrations, nil
}
