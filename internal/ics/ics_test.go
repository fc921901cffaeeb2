package ics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"timeanalytics/internal/period"
)

const feedBody = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:single@test\r\n" +
	"SUMMARY:[Deep Work] Draft\r\n" +
	"DTSTART:20250310T090000Z\r\n" +
	"DTEND:20250310T110000Z\r\n" +
	"LAST-MODIFIED:20250301T000000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup@test\r\n" +
	"SUMMARY:Standup\r\n" +
	"DTSTART:20250310T080000Z\r\n" +
	"DTEND:20250310T081500Z\r\n" +
	"RRULE:FREQ=DAILY;COUNT=5\r\n" +
	"EXDATE:20250312T080000Z\r\n" +
	"LAST-MODIFIED:20250309T120000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup@test\r\n" +
	"SUMMARY:Standup (moved)\r\n" +
	"RECURRENCE-ID:20250311T080000Z\r\n" +
	"DTSTART:20250311T100000Z\r\n" +
	"DTEND:20250311T103000Z\r\n" +
	"LAST-MODIFIED:20250309T120000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:holiday@test\r\n" +
	"SUMMARY:Holiday\r\n" +
	"DTSTART;VALUE=DATE:20250313\r\n" +
	"DTEND;VALUE=DATE:20250314\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"SUMMARY:No UID\r\n" +
	"DTSTART:20250310T090000Z\r\n" +
	"DTEND:20250310T100000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse(t *testing.T) {
	events, skipped, err := Parse([]byte(feedBody))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if skipped != 1 {
		t.Errorf("skipped: got %d, want 1", skipped)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	byUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		byUID[ev.UID] = append(byUID[ev.UID], ev)
	}
	single := byUID["single@test"][0]
	if single.Summary != "[Deep Work] Draft" || single.End.Sub(single.Start) != 2*time.Hour {
		t.Errorf("single event: got %+v", single)
	}
	if !byUID["holiday@test"][0].AllDay {
		t.Error("expected VALUE=DATE event to be all-day")
	}
	if len(byUID["standup@test"]) != 2 {
		t.Fatalf("expected base and override for standup, got %d", len(byUID["standup@test"]))
	}
	base := byUID["standup@test"][0]
	if base.RawRRule != "FREQ=DAILY;COUNT=5" || len(base.ExDates) != 1 {
		t.Errorf("recurrence fields: got rrule=%q exdates=%v", base.RawRRule, base.ExDates)
	}
}

func TestParseEmpty(t *testing.T) {
	if _, _, err := Parse(nil); err == nil {
		t.Error("expected an error for an empty body")
	}
}

func TestExpand(t *testing.T) {
	events, _, err := Parse([]byte(feedBody))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 16, 23, 59, 59, 0, time.UTC)
	occs := Expand(discardLogger(), events, start, end, 0)

	var standups []Occurrence
	for _, o := range occs {
		if o.UID == "standup@test" {
			standups = append(standups, o)
		}
	}
	// Five daily instances minus one EXDATE.
	if len(standups) != 4 {
		t.Fatalf("expected 4 standup occurrences, got %d", len(standups))
	}
	var moved bool
	for _, o := range standups {
		if o.Start.Equal(time.Date(2025, 3, 12, 8, 0, 0, 0, time.UTC)) {
			t.Error("EXDATE instance was not removed")
		}
		if o.Summary == "Standup (moved)" {
			moved = true
			if !o.Start.Equal(time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)) {
				t.Errorf("override start: got %v", o.Start)
			}
		}
	}
	if !moved {
		t.Error("override was not applied")
	}
}

func TestExpandCap(t *testing.T) {
	ev := ParsedEvent{
		UID:      "daily",
		Start:    time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		RawRRule: "FREQ=DAILY",
	}
	occs := Expand(discardLogger(), []ParsedEvent{ev}, ev.Start, ev.Start.AddDate(0, 1, 0), 3)
	if len(occs) != 3 {
		t.Errorf("expected cap of 3 occurrences, got %d", len(occs))
	}
}

func TestFeedFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cal.ics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		io.WriteString(w, feedBody)
	}))
	defer srv.Close()

	feed := NewFeed(discardLogger(), srv.Client(), "team", "Team", srv.URL+"/cal.ics?token=secret")
	r := period.Range{Start: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 16, 23, 59, 59, 0, time.UTC)}

	raw, err := feed.Fetch(context.Background(), r, nil)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	// single + 4 standups + holiday
	if len(raw) != 6 {
		t.Fatalf("expected 6 raw events, got %d", len(raw))
	}
	for _, e := range raw {
		if e.Source != "ics:team" || e.CalendarName != "Team" {
			t.Errorf("unexpected source fields: %+v", e)
		}
		if e.ID == "holiday@test" && (!e.IsAllDay || e.StartRaw != "2025-03-13") {
			t.Errorf("all-day event: got %+v", e)
		}
		if strings.HasPrefix(e.ID, "standup@test") && !strings.Contains(e.ID, "_") {
			t.Errorf("recurring instance ID should carry an instance key: %q", e.ID)
		}
	}

	since := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	raw, err = feed.Fetch(context.Background(), r, &since)
	if err != nil {
		t.Fatalf("incremental Fetch failed: %v", err)
	}
	// The single event was last modified before the watermark.
	for _, e := range raw {
		if e.ID == "single@test" {
			t.Error("event modified before the watermark was returned")
		}
	}
	if len(raw) != 5 {
		t.Errorf("expected 5 incremental events, got %d", len(raw))
	}
}

func TestFeedFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	feed := NewFeed(discardLogger(), srv.Client(), "x", "", srv.URL)
	if _, err := feed.Fetch(context.Background(), period.Lookback(time.Now(), 7), nil); err == nil {
		t.Error("expected an error for a non-200 response")
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("https://user:pw@example.com/cal.ics?token=abc")
	if got != "https://example.com/cal.ics" {
		t.Errorf("got %q", got)
	}
}
