// Package billing holds the monthly rent cycle arithmetic shared by the
// matching engine, the reminder ladder and collection analytics.
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CycleLayout is the cycle key format, e.g. "2024-03".
const CycleLayout = "2006-01"

// Cycle is a billing month in a fixed location.
type Cycle struct {
	Year  int
	Month time.Month
	Loc   *time.Location
}

// CycleOf returns the cycle t falls in, evaluated in loc.
func CycleOf(t time.Time, loc *time.Location) Cycle {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return Cycle{Year: lt.Year(), Month: lt.Month(), Loc: loc}
}

// ParseCycle reads a "2006-01" key.
func ParseCycle(key string, loc *time.Location) (Cycle, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(CycleLayout, key, loc)
	if err != nil {
		return Cycle{}, fmt.Errorf("invalid cycle %q: %w", key, err)
	}
	return Cycle{Year: t.Year(), Month: t.Month(), Loc: loc}, nil
}

func (c Cycle) Key() string { return c.Start().Format(CycleLayout) }

func (c Cycle) String() string { return c.Key() }

// Start is 00:00 on the first of the month.
func (c Cycle) Start() time.Time { return time.Date(c.Year, c.Month, 1, 0, 0, 0, 0, c.Loc) }

// End is the start of the following cycle.
func (c Cycle) End() time.Time { return c.Start().AddDate(0, 1, 0) }

func (c Cycle) Next() Cycle { return CycleOf(c.End(), c.Loc) }

func (c Cycle) Prev() Cycle { return CycleOf(c.Start().AddDate(0, 0, -1), c.Loc) }

// DaysInMonth of the cycle.
func (c Cycle) DaysInMonth() int { return c.End().AddDate(0, 0, -1).Day() }

// DueDate is 00:00 on min(dueDay, days in month).
func (c Cycle) DueDate(dueDay int) time.Time {
	if dueDay < 1 {
		dueDay = 1
	}
	if n := c.DaysInMonth(); dueDay > n {
		dueDay = n
	}
	return time.Date(c.Year, c.Month, dueDay, 0, 0, 0, 0, c.Loc)
}

// Settled reports whether paid covers rent at the configured ratio.
// A zero rent is always settled.
func Settled(paid, rent decimal.Decimal, paidRatio float64) bool {
	if !rent.IsPositive() {
		return true
	}
	return paid.GreaterThanOrEqual(rent.Mul(decimal.NewFromFloat(paidRatio)))
}

// DaysBetween counts whole calendar days from a to b in loc; negative when b
// is before a.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	// UTC dates avoid DST gaps
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
