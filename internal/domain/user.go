package domain

import (
	"time"

	"github.com/google/uuid"
)

// User roles as stored in the users table. Admins never receive reminders
// or appear in performance reports.
const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

// User represents a platform account as read by this subsystem.
// Account creation and credential handling belong to the web layer.
type User struct {
	ID        uuid.UUID
	Email     string
	FullName  string
	Role      string
	CreatedAt time.Time
}

// NotificationPreference holds a user's delivery settings. It is owned by
// the user entity and is read-only to this subsystem.
type NotificationPreference struct {
	UserID        uuid.UUID
	Enabled       bool
	EmailEnabled  bool
	WebhookURL    string // empty means no webhook channel configured
	PreferredTime TimeOfDay
}

// TimeOfDay is a wall-clock time without a date, used for a user's
// preferred notification time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Passed reports whether the time of day has been reached at t.
func (d TimeOfDay) Passed(t time.Time) bool {
	if t.Hour() != d.Hour {
		return t.Hour() > d.Hour
	}
	return t.Minute() >= d.Minute
}
