package period

import (
	"fmt"
	"time"
)

// Range is a closed time window passed to event sources.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the calendar date d (any time of day) falls
// within the range's start and end dates, both inclusive.
func (r Range) Contains(d time.Time) bool {
	day := civil(d)
	return !day.Before(civil(r.Start)) && !day.After(civil(r.End))
}

func (r Range) String() string {
	return r.Start.Format(time.RFC3339) + ".." + r.End.Format(time.RFC3339)
}

// LastWeekRange returns the Monday and Sunday of the last full week before
// today's week. On a Monday it still returns the previous week.
func LastWeekRange(today time.Time) (monday, sunday time.Time) {
	today = civilIn(today)
	monday = today.AddDate(0, 0, -(mondayIndex(today) + 7))
	sunday = monday.AddDate(0, 0, 6)
	return monday, sunday
}

// MonthToDateStart returns the first day of today's month.
func MonthToDateStart(today time.Time) time.Time {
	return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
}

// Lookback returns the window of the given number of days ending at now.
func Lookback(now time.Time, days int) Range {
	now = now.UTC()
	return Range{Start: now.AddDate(0, 0, -days), End: now}
}

// Explicit builds a range from two 2006-01-02 dates. The end date is
// included up to 23:59:59 UTC.
func Explicit(start, end string) (Range, error) {
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return Range{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return Range{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if e.Before(s) {
		return Range{}, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return Range{Start: s, End: e.Add(23*time.Hour + 59*time.Minute + 59*time.Second)}, nil
}

// WeekLabel is the period key of t's ISO week, e.g. "2026_W07".
func WeekLabel(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d_W%02d", year, week)
}

// mondayIndex numbers weekdays from Monday = 0 to Sunday = 6.
func mondayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func civilIn(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
