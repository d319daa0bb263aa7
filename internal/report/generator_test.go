package report

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquiz/quizmaster-api/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// stubStore returns fixed performance rows.
type stubStore struct {
	rows []domain.UserPerformance
	err  error
}

func (s *stubStore) ListUserPerformance(ctx context.Context) ([]domain.UserPerformance, error) {
	return s.rows, s.err
}

// stepClock returns a distinct second on every call.
type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestGenerator_Generate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rows := []domain.UserPerformance{
		{
			UserID:       uuid.MustParse("11111111-1111-1111-1111-111111111111"),
			FullName:     "Asha Rao",
			Email:        "asha@example.com",
			QuizzesTaken: 4,
			AverageScore: 7.5,
		},
		{
			UserID:       uuid.MustParse("22222222-2222-2222-2222-222222222222"),
			FullName:     "Bjorn Lind",
			Email:        "bjorn@example.com",
			QuizzesTaken: 0,
			AverageScore: 0,
		},
	}
	clock := &stepClock{now: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)}
	gen := NewGenerator(&stubStore{rows: rows}, dir, clock, testLogger())

	filename, err := gen.Generate(context.Background())
	require.NoError(t, err)

	// The artifact name is a token, not a path.
	assert.Equal(t, filepath.Base(filename), filename)
	assert.Regexp(t, `^user_performance_\d{8}_\d{6}\.csv$`, filename)

	f, err := os.Open(filepath.Join(dir, filename))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"user_id", "full_name", "email", "quizzes_taken", "average_score"}, records[0])
	assert.Equal(t, []string{
		"11111111-1111-1111-1111-111111111111",
		"Asha Rao",
		"asha@example.com",
		"4",
		"7.50",
	}, records[1])
	assert.Equal(t, "0", records[2][3])
	assert.Equal(t, "0.00", records[2][4])
}

func TestGenerator_RerunsProduceDistinctArtifacts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := &stubStore{rows: []domain.UserPerformance{{
		UserID:       uuid.New(),
		FullName:     "Asha Rao",
		Email:        "asha@example.com",
		QuizzesTaken: 1,
		AverageScore: 5,
	}}}
	clock := &stepClock{now: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)}
	gen := NewGenerator(store, dir, clock, testLogger())

	first, err := gen.Generate(context.Background())
	require.NoError(t, err)
	second, err := gen.Generate(context.Background())
	require.NoError(t, err)

	// A redelivered report task writes a fresh file; it never clobbers the
	// earlier artifact.
	assert.NotEqual(t, first, second)

	firstData, err := os.ReadFile(filepath.Join(dir, first))
	require.NoError(t, err)
	secondData, err := os.ReadFile(filepath.Join(dir, second))
	require.NoError(t, err)
	assert.Equal(t, firstData, secondData)
}

// fixedClock always returns the same instant.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func TestGenerator_SameSecondRerunsBumpSuffix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := &stubStore{rows: []domain.UserPerformance{{
		UserID:       uuid.New(),
		FullName:     "Asha Rao",
		Email:        "asha@example.com",
		QuizzesTaken: 2,
		AverageScore: 6,
	}}}
	clock := fixedClock{now: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)}
	gen := NewGenerator(store, dir, clock, testLogger())

	first, err := gen.Generate(context.Background())
	require.NoError(t, err)
	firstData, err := os.ReadFile(filepath.Join(dir, first))
	require.NoError(t, err)

	// Second run inside the same second must not truncate the first artifact.
	second, err := gen.Generate(context.Background())
	require.NoError(t, err)
	third, err := gen.Generate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "user_performance_20260310_080000.csv", first)
	assert.Equal(t, "user_performance_20260310_080000_1.csv", second)
	assert.Equal(t, "user_performance_20260310_080000_2.csv", third)

	preserved, err := os.ReadFile(filepath.Join(dir, first))
	require.NoError(t, err)
	assert.Equal(t, firstData, preserved)
}

func TestGenerator_StoreErrorFailsRun(t *testing.T) {
	t.Parallel()

	gen := NewGenerator(&stubStore{err: errors.New("connection lost")}, t.TempDir(), nil, testLogger())

	_, err := gen.Generate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read user performance")
}

func TestGenerator_MissingExportDirFailsRun(t *testing.T) {
	t.Parallel()

	gen := NewGenerator(&stubStore{}, filepath.Join(t.TempDir(), "does-not-exist"), nil, testLogger())

	_, err := gen.Generate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create report artifact")
}
