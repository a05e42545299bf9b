// Package schedule runs background jobs on time-based schedules. The
// scheduler is a single actor goroutine owning its tables; all mutation
// goes through its command channel.
package schedule

import (
	"context"
	"time"
)

// Task is one unit of scheduled work. Errors are logged by the wrappers;
// the scheduler itself does not interpret them.
type Task func(ctx context.Context) error

// Schedule computes fire times. Next returns the first fire time strictly
// after the given instant; the zero time means "never again".
type Schedule interface {
	Next(after time.Time) time.Time
}

// every fires on a fixed period.
type every time.Duration

func (e every) Next(after time.Time) time.Time {
	return after.Add(time.Duration(e))
}

// Every returns a fixed-period schedule. d must be positive.
func Every(d time.Duration) Schedule {
	if d <= 0 {
		panic("schedule: non-positive period")
	}
	return every(d)
}

// daily fires once per day at a fixed wall-clock time.
type daily struct {
	hour, minute int
}

func (d daily) Next(after time.Time) time.Time {
	next := time.Date(after.Year(), after.Month(), after.Day(), d.hour, d.minute, 0, 0, after.Location())
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Daily returns a schedule firing at hour:minute local time.
func Daily(hour, minute int) Schedule {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		panic("schedule: invalid wall-clock time")
	}
	return daily{hour: hour, minute: minute}
}

// once fires a single time.
type once time.Time

func (o once) Next(after time.Time) time.Time {
	if time.Time(o).After(after) {
		return time.Time(o)
	}
	return time.Time{}
}

// At returns a schedule firing once at t.
func At(t time.Time) Schedule {
	return once(t)
}
