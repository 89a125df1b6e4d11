package reminder

import (
	"time"

	"github.com/fatflowers/rentpay/internal/models"
)

// Offset is the kind's distance in days from the due date.
func Offset(kind models.ReminderKind, leadDays int) int {
	switch kind {
	case models.ReminderKindPreDue:
		return -leadDays
	case models.ReminderKindDueToday:
		return 0
	case models.ReminderKindDay1:
		return 1
	case models.ReminderKindDay3:
		return 3
	case models.ReminderKindDay7:
		return 7
	case models.ReminderKindDay14:
		return 14
	case models.ReminderKindFinalNotice:
		return 30
	}
	return 0
}

// Window is [start, end) of a rung relative to due. A zero end is unbounded.
func Window(kind models.ReminderKind, due time.Time, leadDays int) (time.Time, time.Time) {
	start := due.AddDate(0, 0, Offset(kind, leadDays))
	switch kind {
	case models.ReminderKindPreDue:
		return start, due
	case models.ReminderKindFinalNotice:
		return start, time.Time{}
	}
	for i, k := range models.ReminderKinds {
		if k == kind && i+1 < len(models.ReminderKinds) {
			return start, due.AddDate(0, 0, Offset(models.ReminderKinds[i+1], leadDays))
		}
	}
	return start, start
}

// OpenRung returns the single rung whose window contains now.
func OpenRung(due, now time.Time, leadDays int) (models.ReminderKind, time.Time, bool) {
	for _, k := range models.ReminderKinds {
		start, end := Window(k, due, leadDays)
		if now.Before(start) {
			continue
		}
		if end.IsZero() || now.Before(end) {
			return k, start, true
		}
	}
	return "", time.Time{}, false
}
