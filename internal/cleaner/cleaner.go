package cleaner

import (
	"fmt"
	"log/slog"
	"time"

	"timeanalytics/internal/models"
)

// Stats counts what happened to the events of one Clean call.
type Stats struct {
	Input        int
	AllDay       int
	Unparseable  int
	InvalidRange int
	Kept         int
}

// Cleaner turns raw source events into canonical events in a fixed location.
type Cleaner struct {
	loc    *time.Location
	logger *slog.Logger
}

// New creates a Cleaner converting events into loc. A nil loc means UTC.
func New(loc *time.Location, logger *slog.Logger) *Cleaner {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{loc: loc, logger: logger}
}

// Clean drops all-day, unparseable and non-positive-duration events and
// derives the calendar fields of the survivors. It never returns nil for a
// non-nil input and never fails: rejected events are counted and logged.
func (c *Cleaner) Clean(raw []models.RawEvent) []models.Event {
	events, _ := c.CleanWithStats(raw)
	return events
}

// CleanWithStats is Clean but also returns the per-reason drop counts.
func (c *Cleaner) CleanWithStats(raw []models.RawEvent) ([]models.Event, Stats) {
	stats := Stats{Input: len(raw)}
	if len(raw) == 0 {
		c.logger.Warn("No events to process.")
		return []models.Event{}, stats
	}

	out := make([]models.Event, 0, len(raw))
	for _, r := range raw {
		if r.IsAllDay {
			stats.AllDay++
			continue
		}

		start, err := ParseRaw(r.StartRaw)
		if err != nil {
			stats.Unparseable++
			c.logger.Debug("Dropping event with unparseable start.", "id", r.ID, "error", err)
			continue
		}
		end, err := ParseRaw(r.EndRaw)
		if err != nil {
			stats.Unparseable++
			c.logger.Debug("Dropping event with unparseable end.", "id", r.ID, "error", err)
			continue
		}

		// Covers both inverted ranges and zero durations.
		if !end.After(start) {
			stats.InvalidRange++
			continue
		}

		out = append(out, c.canonical(r, start, end))
	}
	stats.Kept = len(out)

	c.logger.Info("Removed all-day events.", "count", stats.AllDay)
	if stats.InvalidRange > 0 {
		c.logger.Warn("Removed events with invalid time ranges.", "count", stats.InvalidRange)
	}
	if stats.Unparseable > 0 {
		c.logger.Warn("Removed events with unparseable timestamps.", "count", stats.Unparseable)
	}
	c.logger.Info("Processing complete.", "retained", stats.Kept, "input", stats.Input)
	return out, stats
}

func (c *Cleaner) canonical(r models.RawEvent, start, end time.Time) models.Event {
	start = start.In(c.loc)
	end = end.In(c.loc)

	_, week := start.ISOWeek()
	return models.Event{
		ID:            r.ID,
		Title:         r.Title,
		CalendarName:  r.CalendarName,
		Start:         start,
		End:           end,
		DurationHours: end.Sub(start).Hours(),
		Date:          time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		ISOWeek:       week,
		Year:          start.Year(),
		Month:         start.Format("2006-01"),
		DayOfWeek:     start.Weekday().String(),
	}
}

// ParseRaw parses a bare date as midnight UTC and a timestamp at its stated
// offset, returning the instant in UTC.
func ParseRaw(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	// Some sources omit the offset on UTC values.
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
