package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openquiz/quizmaster-api/internal/domain"
)

// Recipient is a user paired with their notification preference.
type Recipient struct {
	User domain.User
	Pref domain.NotificationPreference
}

// MonthlyAverage is one user's aggregate over a calendar month, used for
// rank computation in the monthly report.
type MonthlyAverage struct {
	UserID       uuid.UUID
	QuizzesTaken int
	AverageScore float64
}

// DataStore is the read surface the dispatcher needs from the domain
// database. Implemented by the Postgres quiz store.
type DataStore interface {
	// ListReminderCandidates returns non-admin users, with preferences, who
	// have no score recorded at or after the given instant.
	ListReminderCandidates(ctx context.Context, inactiveSince time.Time) ([]Recipient, error)

	// ListQuizzesCreatedSince returns quizzes created at or after the given
	// instant, for the "new quizzes" section of the reminder.
	ListQuizzesCreatedSince(ctx context.Context, since time.Time) ([]domain.Quiz, error)

	// ListEmailRecipients returns non-admin users with email notifications
	// enabled, for the monthly report batch.
	ListEmailRecipients(ctx context.Context) ([]Recipient, error)

	// ListMonthlyAverages returns per-user attempt counts and mean raw
	// scores over [start, end).
	ListMonthlyAverages(ctx context.Context, start, end time.Time) ([]MonthlyAverage, error)
}

// DeliveryStats counts the outcome of one dispatch batch. It is recorded as
// the task result, which is where channel-scoped failures become visible
// without failing the task.
type DeliveryStats struct {
	Recipients    int `json:"recipients"`
	WebhookSent   int `json:"webhook_sent"`
	WebhookFailed int `json:"webhook_failed"`
	EmailSent     int `json:"email_sent"`
	EmailFailed   int `json:"email_failed"`
}

// Dispatcher fans a reminder or report batch out to each eligible recipient
// over that recipient's enabled channels. Failures are isolated twice over:
// a failed channel does not stop the recipient's other channels, and a
// failed recipient does not stop the batch.
type Dispatcher struct {
	store            DataStore
	webhook          *WebhookClient
	mailer           Mailer
	renderer         *TemplateRenderer
	inactivityWindow time.Duration
	logger           *slog.Logger
}

// NewDispatcher creates a Dispatcher. A nil mailer disables the email
// channel entirely; sends to it are not attempted and not counted.
func NewDispatcher(
	store DataStore,
	webhook *WebhookClient,
	mailer Mailer,
	renderer *TemplateRenderer,
	inactivityWindow time.Duration,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		store:            store,
		webhook:          webhook,
		mailer:           mailer,
		renderer:         renderer,
		inactivityWindow: inactivityWindow,
		logger:           logger,
	}
}

// SendDailyReminders delivers inactivity reminders. Eligibility: the user
// has notifications enabled, has no score inside the trailing inactivity
// window, and their preferred time of day has passed at now.
func (d *Dispatcher) SendDailyReminders(ctx context.Context, now time.Time) (DeliveryStats, error) {
	var stats DeliveryStats

	candidates, err := d.store.ListReminderCandidates(ctx, now.Add(-d.inactivityWindow))
	if err != nil {
		return stats, fmt.Errorf("failed to list reminder candidates: %w", err)
	}

	newQuizzes, err := d.store.ListQuizzesCreatedSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return stats, fmt.Errorf("failed to list new quizzes: %w", err)
	}

	for _, rec := range candidates {
		if !rec.Pref.Enabled {
			continue
		}
		if !rec.Pref.PreferredTime.Passed(now) {
			continue
		}
		stats.Recipients++

		d.deliverReminder(ctx, rec, newQuizzes, &stats)
	}

	d.logger.Info("daily reminder batch finished",
		"recipients", stats.Recipients,
		"webhook_sent", stats.WebhookSent,
		"webhook_failed", stats.WebhookFailed,
		"email_sent", stats.EmailSent,
		"email_failed", stats.EmailFailed)

	return stats, nil
}

// deliverReminder attempts each of one recipient's channels independently.
func (d *Dispatcher) deliverReminder(ctx context.Context, rec Recipient, newQuizzes []domain.Quiz, stats *DeliveryStats) {
	log := d.logger.With("user_id", rec.User.ID)

	// Webhook channel. No configured URL means the channel is skipped, not
	// failed.
	if rec.Pref.WebhookURL != "" {
		if err := d.webhook.Send(ctx, rec.Pref.WebhookURL, reminderText(rec.User.FullName, newQuizzes)); err != nil {
			stats.WebhookFailed++
			log.Warn("webhook delivery failed", "error", err)
		} else {
			stats.WebhookSent++
		}
	}

	// Email channel.
	if rec.Pref.EmailEnabled && d.mailer != nil {
		html, err := d.renderer.Render("daily_reminder.html", map[string]any{
			"UserName":   rec.User.FullName,
			"NewQuizzes": newQuizzes,
		})
		if err != nil {
			stats.EmailFailed++
			log.Warn("reminder template rendering failed", "error", err)
			return
		}
		if err := d.mailer.Send(ctx, rec.User.Email, "Quiz Master - Daily Reminder", html); err != nil {
			stats.EmailFailed++
			log.Warn("email delivery failed", "error", err)
		} else {
			stats.EmailSent++
		}
	}
}

// reminderText builds the plain-text reminder used on the webhook channel.
func reminderText(name string, newQuizzes []domain.Quiz) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	if len(newQuizzes) > 0 {
		b.WriteString("New quizzes are available:\n")
		for _, q := range newQuizzes {
			fmt.Fprintf(&b, "- %s - %s\n", q.SubjectName, q.ChapterName)
		}
	}
	b.WriteString("\nDon't forget to practice and improve your skills!")
	return b.String()
}

// SendMonthlyReports emails every email-enabled user their activity summary
// for the previous calendar month.
func (d *Dispatcher) SendMonthlyReports(ctx context.Context, now time.Time) (DeliveryStats, error) {
	var stats DeliveryStats

	if d.mailer == nil {
		d.logger.Warn("monthly report batch skipped, no mailer configured")
		return stats, nil
	}

	start, end := previousMonth(now)

	recipients, err := d.store.ListEmailRecipients(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list monthly report recipients: %w", err)
	}

	averages, err := d.store.ListMonthlyAverages(ctx, start, end)
	if err != nil {
		return stats, fmt.Errorf("failed to compute monthly averages: %w", err)
	}

	byUser := make(map[uuid.UUID]MonthlyAverage, len(averages))
	for _, avg := range averages {
		byUser[avg.UserID] = avg
	}

	month := start.Format("January 2006")

	for _, rec := range recipients {
		if !rec.Pref.Enabled || !rec.Pref.EmailEnabled {
			continue
		}
		stats.Recipients++

		avg := byUser[rec.User.ID] // zero value: no attempts this month

		html, err := d.renderer.Render("monthly_report.html", map[string]any{
			"UserName":     rec.User.FullName,
			"Month":        month,
			"QuizzesTaken": avg.QuizzesTaken,
			"AverageScore": avg.AverageScore,
			"Rank":         rank(averages, avg.AverageScore),
		})
		if err != nil {
			stats.EmailFailed++
			d.logger.Warn("monthly report template rendering failed",
				"user_id", rec.User.ID,
				"error", err)
			continue
		}

		subject := fmt.Sprintf("Quiz Master - Monthly Activity Report - %s", month)
		if err := d.mailer.Send(ctx, rec.User.Email, subject, html); err != nil {
			stats.EmailFailed++
			d.logger.Warn("monthly report delivery failed",
				"user_id", rec.User.ID,
				"error", err)
		} else {
			stats.EmailSent++
		}
	}

	d.logger.Info("monthly report batch finished",
		"month", month,
		"recipients", stats.Recipients,
		"email_sent", stats.EmailSent,
		"email_failed", stats.EmailFailed)

	return stats, nil
}

// rank is one plus the number of monthly averages strictly greater than the
// given score.
func rank(averages []MonthlyAverage, score float64) int {
	r := 1
	for _, avg := range averages {
		if avg.AverageScore > score {
			r++
		}
	}
	return r
}

// previousMonth returns the [start, end) bounds of the calendar month
// before the one containing t.
func previousMonth(t time.Time) (time.Time, time.Time) {
	end := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	start := end.AddDate(0, -1, 0)
	return start, end
}
