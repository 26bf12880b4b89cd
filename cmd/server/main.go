// Package main implements the entry point for the taskstream API server,
// which serves shared tasks over HTTP and streams task comments live over
// WebSockets.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/taskstream-api/internal/config"
	"github.com/phrazzld/taskstream-api/internal/platform/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	migrateCmd := flag.String("migrate", "",
		"run a goose migration command (up, down, status, version, reset) and exit")
	skipMigrations := flag.Bool("skip-migrations", false, "do not apply pending migrations at startup")
	flag.Parse()

	if err := run(*migrateCmd, *skipMigrations); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(migrateCmd string, skipMigrations bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}

	if migrateCmd != "" {
		defer closeDatabase(db, log)
		return runMigrations(ctx, db, migrateCmd, log)
	}

	if !skipMigrations {
		if err := runMigrations(ctx, db, "up", log); err != nil {
			closeDatabase(db, log)
			return err
		}
	}

	app, err := newApplication(cfg, log, db)
	if err != nil {
		closeDatabase(db, log)
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}
