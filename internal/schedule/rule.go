package schedule

import "time"

// Rule computes recurring fire slots. Next returns the first slot strictly
// after the given instant, computed directly from the rule rather than by
// repeated increment, so a process that was down for weeks advances in one
// step instead of replaying a backlog of stale slots.
type Rule interface {
	Next(after time.Time) time.Time
}

// DailyRule fires once per day at a fixed hour (minute zero).
type DailyRule struct {
	Hour int
}

// Next returns the next daily slot strictly after the given time.
func (r DailyRule) Next(after time.Time) time.Time {
	slot := time.Date(after.Year(), after.Month(), after.Day(), r.Hour, 0, 0, 0, after.Location())
	if !slot.After(after) {
		slot = slot.AddDate(0, 0, 1)
	}
	return slot
}

// MonthlyRule fires once per month on a fixed day at a fixed hour.
// Day must be in [1, 28] so the slot exists in every month.
type MonthlyRule struct {
	Day  int
	Hour int
}

// Next returns the next monthly slot strictly after the given time.
func (r MonthlyRule) Next(after time.Time) time.Time {
	slot := time.Date(after.Year(), after.Month(), r.Day, r.Hour, 0, 0, 0, after.Location())
	if !slot.After(after) {
		slot = time.Date(after.Year(), after.Month()+1, r.Day, r.Hour, 0, 0, 0, after.Location())
	}
	return slot
}
