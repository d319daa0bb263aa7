package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
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

// fakeDataStore serves fixed rows.
type fakeDataStore struct {
	candidates []Recipient
	quizzes    []domain.Quiz
	recipients []Recipient
	averages   []MonthlyAverage

	candidatesErr error
}

func (s *fakeDataStore) ListReminderCandidates(ctx context.Context, inactiveSince time.Time) ([]Recipient, error) {
	return s.candidates, s.candidatesErr
}

func (s *fakeDataStore) ListQuizzesCreatedSince(ctx context.Context, since time.Time) ([]domain.Quiz, error) {
	return s.quizzes, nil
}

func (s *fakeDataStore) ListEmailRecipients(ctx context.Context) ([]Recipient, error) {
	return s.recipients, nil
}

func (s *fakeDataStore) ListMonthlyAverages(ctx context.Context, start, end time.Time) ([]MonthlyAverage, error) {
	return s.averages, nil
}

// recordingMailer captures sends and can fail selected addresses.
type recordingMailer struct {
	mu     sync.Mutex
	sent   []sentMail
	failTo map[string]bool
}

type sentMail struct {
	to      string
	subject string
	body    string
}

func (m *recordingMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTo[to] {
		return errors.New("relay rejected recipient")
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

func newTestDispatcher(t *testing.T, store DataStore, mailer Mailer) *Dispatcher {
	t.Helper()
	renderer, err := NewTemplateRenderer()
	require.NoError(t, err)
	webhook := NewWebhookClient(2*time.Second, testLogger())
	return NewDispatcher(store, webhook, mailer, renderer, 7*24*time.Hour, testLogger())
}

func recipient(name, email, webhookURL string, pref domain.NotificationPreference) Recipient {
	id := uuid.New()
	pref.UserID = id
	pref.WebhookURL = webhookURL
	return Recipient{
		User: domain.User{ID: id, Email: email, FullName: name, Role: domain.RoleStudent},
		Pref: pref,
	}
}

func enabledPref() domain.NotificationPreference {
	return domain.NotificationPreference{
		Enabled:       true,
		EmailEnabled:  true,
		PreferredTime: domain.TimeOfDay{Hour: 18},
	}
}

func TestSendDailyReminders_FailedRecipientDoesNotStopBatch(t *testing.T) {
	t.Parallel()

	var hookCalls struct {
		mu    sync.Mutex
		texts []string
	}
	hookServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		hookCalls.mu.Lock()
		hookCalls.texts = append(hookCalls.texts, payload.Text)
		hookCalls.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer hookServer.Close()

	// An immediately closed server stands in for an unreachable webhook.
	deadServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := deadServer.URL
	deadServer.Close()

	store := &fakeDataStore{
		candidates: []Recipient{
			recipient("Asha Rao", "asha@example.com", hookServer.URL, enabledPref()),
			recipient("Bjorn Lind", "bjorn@example.com", deadURL, enabledPref()),
			recipient("Chen Wu", "chen@example.com", hookServer.URL, enabledPref()),
		},
	}
	d := newTestDispatcher(t, store, nil)

	now := time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)
	stats, err := d.SendDailyReminders(context.Background(), now)
	require.NoError(t, err)

	// The dead webhook in the middle must not prevent the third delivery.
	assert.Equal(t, 3, stats.Recipients)
	assert.Equal(t, 2, stats.WebhookSent)
	assert.Equal(t, 1, stats.WebhookFailed)

	hookCalls.mu.Lock()
	defer hookCalls.mu.Unlock()
	require.Len(t, hookCalls.texts, 2)
	assert.Contains(t, hookCalls.texts[0], "Asha Rao")
	assert.Contains(t, hookCalls.texts[1], "Chen Wu")
}

func TestSendDailyReminders_Eligibility(t *testing.T) {
	t.Parallel()

	disabled := enabledPref()
	disabled.Enabled = false

	notYet := enabledPref()
	notYet.PreferredTime = domain.TimeOfDay{Hour: 21}

	store := &fakeDataStore{
		candidates: []Recipient{
			recipient("Disabled", "disabled@example.com", "", disabled),
			recipient("Later", "later@example.com", "", notYet),
			recipient("Due", "due@example.com", "", enabledPref()),
		},
	}
	mailer := &recordingMailer{}
	d := newTestDispatcher(t, store, mailer)

	now := time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)
	stats, err := d.SendDailyReminders(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Recipients)
	assert.Equal(t, 1, stats.EmailSent)
	// No webhook URL configured means skipped, not failed.
	assert.Zero(t, stats.WebhookSent)
	assert.Zero(t, stats.WebhookFailed)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "due@example.com", mailer.sent[0].to)
	assert.Contains(t, mailer.sent[0].body, "Due")
}

func TestSendDailyReminders_NewQuizzesListedInEmail(t *testing.T) {
	t.Parallel()

	store := &fakeDataStore{
		candidates: []Recipient{recipient("Asha", "asha@example.com", "", enabledPref())},
		quizzes: []domain.Quiz{
			{ID: uuid.New(), SubjectName: "Physics", ChapterName: "Optics", QuestionCount: 10},
		},
	}
	mailer := &recordingMailer{}
	d := newTestDispatcher(t, store, mailer)

	_, err := d.SendDailyReminders(context.Background(), time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0].body, "Physics - Optics")
}

func TestSendDailyReminders_ChannelFailuresAreIndependent(t *testing.T) {
	t.Parallel()

	hookServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer hookServer.Close()

	rec := recipient("Asha", "asha@example.com", hookServer.URL, enabledPref())
	store := &fakeDataStore{candidates: []Recipient{rec}}
	mailer := &recordingMailer{failTo: map[string]bool{"asha@example.com": true}}
	d := newTestDispatcher(t, store, mailer)

	stats, err := d.SendDailyReminders(context.Background(), time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// The failing email channel does not take the webhook down with it.
	assert.Equal(t, 1, stats.WebhookSent)
	assert.Equal(t, 1, stats.EmailFailed)
	assert.Zero(t, stats.EmailSent)
}

func TestSendDailyReminders_StoreErrorFailsBatch(t *testing.T) {
	t.Parallel()

	store := &fakeDataStore{candidatesErr: errors.New("connection lost")}
	d := newTestDispatcher(t, store, nil)

	_, err := d.SendDailyReminders(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list reminder candidates")
}

func TestSendMonthlyReports(t *testing.T) {
	t.Parallel()

	top := recipient("Asha", "asha@example.com", "", enabledPref())
	second := recipient("Bjorn", "bjorn@example.com", "", enabledPref())
	quiet := recipient("Chen", "chen@example.com", "", enabledPref())

	store := &fakeDataStore{
		recipients: []Recipient{top, second, quiet},
		averages: []MonthlyAverage{
			{UserID: top.User.ID, QuizzesTaken: 6, AverageScore: 8.5},
			{UserID: second.User.ID, QuizzesTaken: 3, AverageScore: 5.0},
		},
	}
	mailer := &recordingMailer{}
	d := newTestDispatcher(t, store, mailer)

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	stats, err := d.SendMonthlyReports(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Recipients)
	assert.Equal(t, 3, stats.EmailSent)
	require.Len(t, mailer.sent, 3)

	// Reports cover the previous calendar month.
	assert.Contains(t, mailer.sent[0].subject, "February 2026")

	assert.Contains(t, mailer.sent[0].body, "Your rank: 1")
	assert.Contains(t, mailer.sent[1].body, "Your rank: 2")
	// A user without attempts still gets a report, ranked below everyone
	// with a score.
	assert.Contains(t, mailer.sent[2].body, "Quizzes taken: 0")
	assert.Contains(t, mailer.sent[2].body, "Your rank: 3")
}

func TestSendMonthlyReports_NoMailerSkipsBatch(t *testing.T) {
	t.Parallel()

	store := &fakeDataStore{
		recipients: []Recipient{recipient("Asha", "asha@example.com", "", enabledPref())},
	}
	d := newTestDispatcher(t, store, nil)

	stats, err := d.SendMonthlyReports(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, stats.Recipients)
	assert.Zero(t, stats.EmailSent)
}

func TestPreviousMonth(t *testing.T) {
	t.Parallel()

	start, end := previousMonth(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), end)

	// January rolls back across the year boundary.
	start, end = previousMonth(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), end)
}
