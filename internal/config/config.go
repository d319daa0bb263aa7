package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Task     TaskConfig     `mapstructure:"task"     validate:"required"`
	Schedule ScheduleConfig `mapstructure:"schedule" validate:"required"`
	Notify   NotifyConfig   `mapstructure:"notify"   validate:"required"`
	Report   ReportConfig   `mapstructure:"report"   validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains settings for consuming the platform's bearer tokens.
// Token issuance lives in the web layer; this subsystem only verifies them.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// TaskConfig contains worker pool and retry policy settings.
type TaskConfig struct {
	// WorkerCount determines how many concurrent workers process tasks.
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`

	// QueueSize is the buffer size of the in-memory task queue.
	QueueSize int `mapstructure:"queue_size" validate:"required,gt=0"`

	// MaxAttempts is the number of executions a task is allowed before it is
	// marked failed for good.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`

	// RetryBackoffSeconds is the base delay before a failed task is requeued.
	// The delay doubles with each attempt.
	RetryBackoffSeconds int `mapstructure:"retry_backoff_seconds" validate:"gte=0"`

	// TimeoutMinutes bounds a single handler execution. A handler that runs
	// longer is cancelled and the task is failed with a timeout classification.
	TimeoutMinutes int `mapstructure:"timeout_minutes" validate:"required,gt=0"`

	// StuckTaskAgeMinutes is how long a task may sit in the running state
	// before the recovery monitor resets it to pending.
	StuckTaskAgeMinutes int `mapstructure:"stuck_task_age_minutes" validate:"required,gt=0"`
}

// ScheduleConfig contains the recurring job firing rules.
type ScheduleConfig struct {
	// TickSeconds is the scheduler evaluation interval.
	TickSeconds int `mapstructure:"tick_seconds" validate:"required,gt=0"`

	// DailyReminderHour is the local hour-of-day at which the daily reminder
	// batch fires.
	DailyReminderHour int `mapstructure:"daily_reminder_hour" validate:"gte=0,lte=23"`

	// MonthlyReportDay / MonthlyReportHour place the monthly activity report
	// batch on the calendar. Days above 28 are rejected so every month has
	// a valid slot.
	MonthlyReportDay  int `mapstructure:"monthly_report_day"  validate:"required,gte=1,lte=28"`
	MonthlyReportHour int `mapstructure:"monthly_report_hour" validate:"gte=0,lte=23"`
}

// NotifyConfig contains notification dispatch settings.
type NotifyConfig struct {
	// InactivityWindowDays is the trailing window without a recorded score
	// that makes a user eligible for a daily reminder.
	InactivityWindowDays int `mapstructure:"inactivity_window_days" validate:"required,gt=0"`

	// WebhookTimeoutSeconds bounds a single outbound webhook call.
	WebhookTimeoutSeconds int `mapstructure:"webhook_timeout_seconds" validate:"required,gt=0"`

	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig describes the outbound mail relay. When Host is empty email
// delivery is disabled and email sends are recorded as skipped.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	From     string `mapstructure:"from"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// ReportConfig contains report generation settings.
type ReportConfig struct {
	// ExportDir is the directory report artifacts are written to. Created on
	// startup if missing.
	ExportDir string `mapstructure:"export_dir" validate:"required"`
}

// RedisConfig contains settings for the ranking snapshot cache.
// When Addr is empty the cache is disabled and ranking reads go straight
// to the database.
type RedisConfig struct {
	Addr           string `mapstructure:"addr"`
	RankingTTLSecs int    `mapstructure:"ranking_ttl_seconds" validate:"gte=0"`
}
