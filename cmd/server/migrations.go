package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/openquiz/quizmaster-api/internal/platform/postgres"
)

// handleMigrations executes the migration command selected by the -migrate
// flag and returns once it completes. The server does not start in this
// mode.
func handleMigrations(db *sql.DB, migrateCmd string) error {
	slog.Info("Executing migration command", "command", migrateCmd)

	switch migrateCmd {
	case "up":
		return postgres.MigrateUp(db)
	case "down":
		return postgres.MigrateDown(db)
	case "status":
		return postgres.MigrationStatus(db)
	default:
		return fmt.Errorf("unknown migration command %q (expected up, down, or status)", migrateCmd)
	}
}
