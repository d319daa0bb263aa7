package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/openquiz/quizmaster-api/internal/domain"
)

// artifactTimestampLayout names artifacts by generation time, so a
// redundant re-run produces a fresh file instead of corrupting a prior
// successful one.
const artifactTimestampLayout = "20060102_150405"

// Clock abstracts time for deterministic artifact naming in tests.
type Clock interface {
	Now() time.Time
}

// systemClock is the production Clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// DataStore is the read surface the generator needs. All rows for one
// report run are read inside a single transaction by the implementation so
// the artifact never contains half-updated scores.
type DataStore interface {
	// ListUserPerformance returns one row per non-admin user: quizzes
	// attempted and mean raw score.
	ListUserPerformance(ctx context.Context) ([]domain.UserPerformance, error)
}

// Generator writes the bulk user performance report as a CSV artifact in
// the export directory.
type Generator struct {
	store     DataStore
	exportDir string
	clock     Clock
	logger    *slog.Logger
}

// NewGenerator creates a Generator writing to exportDir. Pass a nil clock
// to use the system clock.
func NewGenerator(store DataStore, exportDir string, clock Clock, logger *slog.Logger) *Generator {
	if clock == nil {
		clock = systemClock{}
	}
	return &Generator{
		store:     store,
		exportDir: exportDir,
		clock:     clock,
		logger:    logger,
	}
}

// Generate computes the performance rows and writes them to a timestamped
// CSV file, returning the artifact's filename (not its path). Failure to
// write the artifact is a shared-setup failure and fails the whole run.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	rows, err := g.store.ListUserPerformance(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read user performance: %w", err)
	}

	f, filename, err := g.createArtifact()
	if err != nil {
		return "", fmt.Errorf("failed to create report artifact: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"user_id", "full_name", "email", "quizzes_taken", "average_score"}); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write report header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.UserID.String(),
			row.FullName,
			row.Email,
			strconv.Itoa(row.QuizzesTaken),
			strconv.FormatFloat(row.AverageScore, 'f', 2, 64),
		}
		if err := w.Write(record); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("failed to write report row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to flush report artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close report artifact: %w", err)
	}

	g.logger.Info("performance report generated",
		"artifact", filename,
		"rows", len(rows))

	return filename, nil
}

// createArtifact opens a fresh artifact file exclusively. The timestamp has
// one-second granularity, so a run landing in the same second as a prior one
// bumps a numeric suffix instead of truncating the earlier artifact.
func (g *Generator) createArtifact() (*os.File, string, error) {
	base := fmt.Sprintf("user_performance_%s", g.clock.Now().Format(artifactTimestampLayout))
	for suffix := 0; ; suffix++ {
		filename := base + ".csv"
		if suffix > 0 {
			filename = fmt.Sprintf("%s_%d.csv", base, suffix)
		}
		f, err := os.OpenFile(filepath.Join(g.exportDir, filename), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, filename, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", err
		}
	}
}
