// Package main implements the entry point for the QuizMaster async
// service, which runs the background task workers, the recurring job
// scheduler, and the HTTP surface for task submission, status polling,
// ranking reads, and report artifact downloads.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/openquiz/quizmaster-api/internal/config"
	"github.com/openquiz/quizmaster-api/internal/platform/logger"
	"github.com/openquiz/quizmaster-api/internal/platform/postgres"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, status) and exit")
	flag.Parse()

	if err := run(*migrateCmd); err != nil {
		log.Fatalf("Fatal: %v", err)
	}
}

// run loads configuration, sets up logging and the database, then either
// executes a migration command or starts the full application.
func run(migrateCmd string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	slog.Info("Configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"worker_count", cfg.Task.WorkerCount,
		"export_dir", cfg.Report.ExportDir)

	db, err := setupAppDatabase(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}

	if migrateCmd != "" {
		defer func() { _ = db.Close() }()
		return handleMigrations(db, migrateCmd)
	}

	if err := postgres.MigrateUp(db); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	if err := os.MkdirAll(cfg.Report.ExportDir, 0o755); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	ctx := context.Background()
	app, err := newApplication(ctx, cfg, appLogger, db)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.Run(ctx)
}
