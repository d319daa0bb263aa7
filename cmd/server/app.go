package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openquiz/quizmaster-api/internal/config"
	"github.com/openquiz/quizmaster-api/internal/notify"
	"github.com/openquiz/quizmaster-api/internal/platform/postgres"
	"github.com/openquiz/quizmaster-api/internal/platform/redicache"
	"github.com/openquiz/quizmaster-api/internal/report"
	"github.com/openquiz/quizmaster-api/internal/schedule"
	"github.com/openquiz/quizmaster-api/internal/store"
	"github.com/openquiz/quizmaster-api/internal/task"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	taskStore *postgres.TaskStore
	quizStore *postgres.QuizStore

	dispatcher   *notify.Dispatcher
	rankingCache *redicache.RankingCache

	runner    *task.Runner
	scheduler *schedule.Scheduler
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts the core dependencies that must be established
// before application initialization: configuration, logger, and an open
// database connection.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	app.taskStore = postgres.NewTaskStore(db)
	app.quizStore = postgres.NewQuizStore(db)

	renderer, err := notify.NewTemplateRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load notification templates: %w", err)
	}

	webhook := notify.NewWebhookClient(
		time.Duration(cfg.Notify.WebhookTimeoutSeconds)*time.Second,
		logger.With("component", "webhook_client"),
	)

	// A missing SMTP host disables the email channel; the dispatcher
	// records those sends as skipped rather than failed.
	var mailer notify.Mailer
	if cfg.Notify.SMTP.Host != "" {
		mailer = notify.NewSMTPMailer(cfg.Notify.SMTP, logger.With("component", "smtp_mailer"))
		logger.Info("Email channel enabled", "smtp_host", cfg.Notify.SMTP.Host)
	} else {
		logger.Info("Email channel disabled, no SMTP host configured")
	}

	app.dispatcher = notify.NewDispatcher(
		app.quizStore,
		webhook,
		mailer,
		renderer,
		time.Duration(cfg.Notify.InactivityWindowDays)*24*time.Hour,
		logger.With("component", "dispatcher"),
	)

	if cfg.Redis.Addr != "" {
		app.rankingCache = redicache.New(cfg.Redis.Addr, time.Duration(cfg.Redis.RankingTTLSecs)*time.Second)
		logger.Info("Ranking cache enabled", "redis_addr", cfg.Redis.Addr)
	}

	app.runner = task.NewRunner(app.taskStore, task.RunnerConfig{
		WorkerCount:  cfg.Task.WorkerCount,
		QueueSize:    cfg.Task.QueueSize,
		MaxAttempts:  cfg.Task.MaxAttempts,
		RetryBackoff: time.Duration(cfg.Task.RetryBackoffSeconds) * time.Second,
		Timeout:      time.Duration(cfg.Task.TimeoutMinutes) * time.Minute,
		StuckTaskAge: time.Duration(cfg.Task.StuckTaskAgeMinutes) * time.Minute,
	}, logger.With("component", "task_runner"))

	app.registerTaskHandlers()

	if err := app.runner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task runner: %w", err)
	}

	app.scheduler = schedule.NewScheduler(
		[]*schedule.JobSpec{
			{
				ID:      "daily-reminders",
				Kind:    task.KindDailyReminder,
				Rule:    schedule.DailyRule{Hour: cfg.Schedule.DailyReminderHour},
				Enabled: true,
			},
			{
				ID:      "monthly-reports",
				Kind:    task.KindMonthlyReport,
				Rule:    schedule.MonthlyRule{Day: cfg.Schedule.MonthlyReportDay, Hour: cfg.Schedule.MonthlyReportHour},
				Enabled: true,
			},
		},
		app.runner,
		schedule.SystemClock{},
		time.Duration(cfg.Schedule.TickSeconds)*time.Second,
		logger.With("component", "scheduler"),
	)
	app.scheduler.Start()

	logger.Info("Application initialized successfully")
	return app, nil
}

// registerTaskHandlers binds each task kind to its handler. Handlers run
// on worker goroutines under the runner's per-task timeout.
func (app *application) registerTaskHandlers() {
	app.runner.Register(task.KindPerformanceReport, app.handlePerformanceReport)
	app.runner.Register(task.KindDailyReminder, app.handleDailyReminder)
	app.runner.Register(task.KindMonthlyReport, app.handleMonthlyReport)
}

// performanceReportResult is the task result recorded for a successful
// report run. Clients download the artifact by the returned filename.
type performanceReportResult struct {
	Artifact string `json:"artifact"`
}

func (app *application) handlePerformanceReport(ctx context.Context, t *task.Task) (json.RawMessage, error) {
	// All rows for one artifact are read inside a single transaction so
	// the CSV never mixes scores from before and after a concurrent write.
	var filename string
	err := store.RunInTransaction(ctx, app.db, func(ctx context.Context, tx *sql.Tx) error {
		gen := report.NewGenerator(
			app.quizStore.WithTx(tx),
			app.config.Report.ExportDir,
			nil,
			app.logger.With("component", "report_generator"),
		)
		var genErr error
		filename, genErr = gen.Generate(ctx)
		return genErr
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(performanceReportResult{Artifact: filename})
}

func (app *application) handleDailyReminder(ctx context.Context, t *task.Task) (json.RawMessage, error) {
	stats, err := app.dispatcher.SendDailyReminders(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	return json.Marshal(stats)
}

func (app *application) handleMonthlyReport(ctx context.Context, t *task.Task) (json.RawMessage, error) {
	stats, err := app.dispatcher.SendMonthlyReports(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	return json.Marshal(stats)
}

// Run starts the HTTP server and blocks until shutdown completes.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources. The
// scheduler stops before the runner so no new tasks are enqueued while
// in-flight work drains.
func (app *application) cleanup() {
	if app.scheduler != nil {
		app.scheduler.Stop()
	}
	if app.runner != nil {
		app.runner.Stop()
	}
	if app.rankingCache != nil {
		if err := app.rankingCache.Close(); err != nil {
			app.logger.Error("Error closing ranking cache", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
