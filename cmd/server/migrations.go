package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/taskstream-api/internal/platform/postgres"
	"github.com/pressly/goose/v3"
)

var allowedMigrationCommands = map[string]bool{
	"up":      true,
	"down":    true,
	"status":  true,
	"version": true,
	"reset":   true,
}

// runMigrations applies a goose command using the migrations embedded in
// the postgres package.
func runMigrations(ctx context.Context, db *sql.DB, command string, logger *slog.Logger) error {
	if !allowedMigrationCommands[command] {
		return fmt.Errorf("unsupported migration command %q", command)
	}

	log := logger.With("component", "migrations", "command", command)
	goose.SetBaseFS(postgres.Migrations)
	goose.SetLogger(&slogGooseLogger{logger: log})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	start := time.Now()
	if err := goose.RunContext(ctx, command, db, postgres.MigrationsDir); err != nil {
		log.Error("migration failed", "error", err)
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	log.Info("migration completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// slogGooseLogger adapts goose.Logger to slog. Fatalf does not exit; the
// error is returned from runMigrations instead.
type slogGooseLogger struct {
	logger *slog.Logger
}

func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
