package models

import "time"

// RawEvent represents a calendar event as delivered by an event source.
// This is an internal representation, independent of any specific calendar provider.
type RawEvent struct {
	ID           string `json:"id"`            // Identifier of the event in its source calendar
	Title        string `json:"title"`         // Summary or title of the event
	CalendarName string `json:"calendar_name"` // Display name of the calendar, may be empty
	StartRaw     string `json:"start_raw"`     // Bare date (2006-01-02) or RFC 3339 timestamp
	EndRaw       string `json:"end_raw"`       // Bare date (2006-01-02) or RFC 3339 timestamp
	IsAllDay     bool   `json:"is_all_day"`
	Created      string `json:"created,omitempty"` // Only used for incremental-fetch watermarking
	Updated      string `json:"updated,omitempty"`
	Source       string `json:"source"` // The collaborator that produced the event (e.g., "google")
}

// Event is a cleaned, timezone-normalized event with a positive duration.
// End is always after Start and the event is never an all-day event.
type Event struct {
	ID           string
	Title        string
	CalendarName string

	// Start and End are in the configured local timezone.
	Start time.Time
	End   time.Time

	DurationHours float64

	// Date is the local calendar date of Start, stored as midnight UTC so that
	// day arithmetic is not affected by DST transitions.
	Date      time.Time
	ISOWeek   int
	Year      int
	Month     string // 2006-01
	DayOfWeek string
}

// DateKey returns the event's calendar date as 2006-01-02.
func (e Event) DateKey() string {
	return e.Date.Format(time.DateOnly)
}

// FeaturedEvent is an Event enriched with a category, its ISO week key,
// the active-day streak ending at its date and its share of that day's hours.
type FeaturedEvent struct {
	Event

	Category   string
	ISOWeekKey string // e.g. 2025-W01
	Streak     int
	DailyRatio float64
}
