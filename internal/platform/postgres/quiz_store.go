package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openquiz/quizmaster-api/internal/domain"
	"github.com/openquiz/quizmaster-api/internal/notify"
	"github.com/openquiz/quizmaster-api/internal/store"
)

// QuizStore reads the domain tables this subsystem consumes: users with
// their notification preferences, quizzes and scores. It never writes them;
// the CRUD layer owns those tables.
type QuizStore struct {
	db store.DBTX
}

// NewQuizStore creates a new QuizStore.
func NewQuizStore(db store.DBTX) *QuizStore {
	return &QuizStore{db: db}
}

// WithTx returns a QuizStore bound to the given transaction, so all reads of
// one report run observe a single consistent snapshot.
func (s *QuizStore) WithTx(tx *sql.Tx) *QuizStore {
	return &QuizStore{db: tx}
}

// ListReminderCandidates returns non-admin users with no score recorded at
// or after the given instant, together with their notification preferences.
func (s *QuizStore) ListReminderCandidates(ctx context.Context, inactiveSince time.Time) ([]notify.Recipient, error) {
	query := `
		SELECT u.id, u.email, u.full_name, u.role, u.created_at,
		       u.notifications_enabled, u.email_notifications,
		       COALESCE(u.webhook_url, ''), u.preferred_time
		FROM users u
		WHERE u.role <> 'admin'
		  AND NOT EXISTS (
			SELECT 1 FROM scores sc
			WHERE sc.user_id = u.id AND sc.time_stamp >= $1
		  )
		ORDER BY u.created_at ASC
	`
	return s.queryRecipients(ctx, query, inactiveSince)
}

// ListEmailRecipients returns non-admin users with email notifications
// enabled.
func (s *QuizStore) ListEmailRecipients(ctx context.Context) ([]notify.Recipient, error) {
	query := `
		SELECT u.id, u.email, u.full_name, u.role, u.created_at,
		       u.notifications_enabled, u.email_notifications,
		       COALESCE(u.webhook_url, ''), u.preferred_time
		FROM users u
		WHERE u.role <> 'admin' AND u.email_notifications = TRUE
		ORDER BY u.created_at ASC
	`
	return s.queryRecipients(ctx, query)
}

func (s *QuizStore) queryRecipients(ctx context.Context, query string, args ...any) ([]notify.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipients: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var recipients []notify.Recipient
	for rows.Next() {
		var rec notify.Recipient
		var preferredTime string

		err := rows.Scan(
			&rec.User.ID,
			&rec.User.Email,
			&rec.User.FullName,
			&rec.User.Role,
			&rec.User.CreatedAt,
			&rec.Pref.Enabled,
			&rec.Pref.EmailEnabled,
			&rec.Pref.WebhookURL,
			&preferredTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipient row: %w", err)
		}

		rec.Pref.UserID = rec.User.ID
		rec.Pref.PreferredTime, err = parseTimeOfDay(preferredTime)
		if err != nil {
			return nil, fmt.Errorf("invalid preferred_time for user %s: %w", rec.User.ID, err)
		}

		recipients = append(recipients, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipient rows: %w", err)
	}

	return recipients, nil
}

// parseTimeOfDay parses the HH:MM preferred_time column.
func parseTimeOfDay(s string) (domain.TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return domain.TimeOfDay{}, err
	}
	return domain.TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// ListQuizzesCreatedSince returns quizzes created at or after the given
// instant, labelled with their subject and chapter names.
func (s *QuizStore) ListQuizzesCreatedSince(ctx context.Context, since time.Time) ([]domain.Quiz, error) {
	query := `
		SELECT q.id, sub.name, c.name,
		       (SELECT COUNT(*) FROM questions qq WHERE qq.quiz_id = q.id),
		       q.created_at
		FROM quizzes q
		JOIN chapters c ON c.id = q.chapter_id
		JOIN subjects sub ON sub.id = c.subject_id
		WHERE q.created_at >= $1
		ORDER BY q.created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query quizzes: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var quizzes []domain.Quiz
	for rows.Next() {
		var q domain.Quiz
		if err := rows.Scan(&q.ID, &q.SubjectName, &q.ChapterName, &q.QuestionCount, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quiz row: %w", err)
		}
		quizzes = append(quizzes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quiz rows: %w", err)
	}

	return quizzes, nil
}

// ListMonthlyAverages returns per-user attempt counts and mean raw scores
// over [start, end).
func (s *QuizStore) ListMonthlyAverages(ctx context.Context, start, end time.Time) ([]notify.MonthlyAverage, error) {
	query := `
		SELECT sc.user_id, COUNT(*), AVG(sc.total_scored)
		FROM scores sc
		JOIN users u ON u.id = sc.user_id
		WHERE u.role <> 'admin' AND sc.time_stamp >= $1 AND sc.time_stamp < $2
		GROUP BY sc.user_id
	`
	rows, err := s.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly averages: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var averages []notify.MonthlyAverage
	for rows.Next() {
		var avg notify.MonthlyAverage
		if err := rows.Scan(&avg.UserID, &avg.QuizzesTaken, &avg.AverageScore); err != nil {
			return nil, fmt.Errorf("failed to scan monthly average row: %w", err)
		}
		averages = append(averages, avg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monthly average rows: %w", err)
	}

	return averages, nil
}

// ListUserPerformance returns one row per non-admin user with their attempt
// count and mean raw score. Users with no attempts appear with zeroes.
func (s *QuizStore) ListUserPerformance(ctx context.Context) ([]domain.UserPerformance, error) {
	query := `
		SELECT u.id, u.full_name, u.email,
		       COUNT(sc.id), COALESCE(AVG(sc.total_scored), 0)
		FROM users u
		LEFT JOIN scores sc ON sc.user_id = u.id
		WHERE u.role <> 'admin'
		GROUP BY u.id, u.full_name, u.email
		ORDER BY u.full_name ASC, u.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query user performance: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var perf []domain.UserPerformance
	for rows.Next() {
		var p domain.UserPerformance
		if err := rows.Scan(&p.UserID, &p.FullName, &p.Email, &p.QuizzesTaken, &p.AverageScore); err != nil {
			return nil, fmt.Errorf("failed to scan performance row: %w", err)
		}
		perf = append(perf, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating performance rows: %w", err)
	}

	return perf, nil
}

// ListQuizAttempts returns every non-admin attempt with the question count
// of its quiz, the input of the normalized ranking computation.
func (s *QuizStore) ListQuizAttempts(ctx context.Context) ([]domain.QuizAttempt, error) {
	query := `
		SELECT sc.user_id, u.full_name, sc.total_scored,
		       (SELECT COUNT(*) FROM questions qq WHERE qq.quiz_id = sc.quiz_id)
		FROM scores sc
		JOIN users u ON u.id = sc.user_id
		WHERE u.role <> 'admin'
		ORDER BY sc.time_stamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query quiz attempts: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var attempts []domain.QuizAttempt
	for rows.Next() {
		var a domain.QuizAttempt
		if err := rows.Scan(&a.UserID, &a.DisplayName, &a.Score, &a.QuestionCount); err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempt rows: %w", err)
	}

	return attempts, nil
}
