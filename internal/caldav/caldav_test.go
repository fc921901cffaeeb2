package caldav

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"timeanalytics/internal/period"
)

func decode(t *testing.T, text string) *ical.Calendar {
	t.Helper()
	cal, err := ical.NewDecoder(strings.NewReader(text)).Decode()
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return cal
}

const seriesObject = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:review@test\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"SUMMARY:[Admin] Weekly review\r\n" +
	"DTSTART:20250303T160000Z\r\n" +
	"DTEND:20250303T170000Z\r\n" +
	"RRULE:FREQ=WEEKLY;COUNT=4\r\n" +
	"LAST-MODIFIED:20250302T000000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

const singleObject = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:lunch@test\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"SUMMARY:Lunch\r\n" +
	"DTSTART:20250311T120000Z\r\n" +
	"DTEND:20250311T130000Z\r\n" +
	"LAST-MODIFIED:20250310T000000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:trip@test\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"SUMMARY:Trip\r\n" +
	"DTSTART;VALUE=DATE:20250312\r\n" +
	"DTEND;VALUE=DATE:20250313\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestToRawEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	data := []*ical.Calendar{decode(t, seriesObject), decode(t, singleObject)}
	r := period.Range{Start: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 16, 23, 59, 59, 0, time.UTC)}

	raw := toRawEvents(logger, data, "Home", r, nil, time.UTC)
	// one weekly instance in range, lunch, trip
	if len(raw) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(raw), raw)
	}

	byTitle := make(map[string]int)
	for i, e := range raw {
		byTitle[e.Title] = i
		if e.Source != "caldav" || e.CalendarName != "Home" {
			t.Errorf("unexpected source fields: %+v", e)
		}
	}
	review := raw[byTitle["[Admin] Weekly review"]]
	if review.StartRaw != "2025-03-10T16:00:00Z" || review.EndRaw != "2025-03-10T17:00:00Z" {
		t.Errorf("weekly instance: got %+v", review)
	}
	if trip := raw[byTitle["Trip"]]; !trip.IsAllDay || trip.StartRaw != "2025-03-12" {
		t.Errorf("all-day event: got %+v", trip)
	}

	since := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	raw = toRawEvents(logger, data, "Home", r, &since, time.UTC)
	for _, e := range raw {
		if e.Title == "[Admin] Weekly review" {
			t.Error("series modified before the watermark was returned")
		}
	}
	if len(raw) != 2 {
		t.Errorf("expected 2 incremental events, got %d", len(raw))
	}
}

func TestSelectCalendars(t *testing.T) {
	calendars := []caldav.Calendar{
		{Path: "/1/calendars/home/", Name: "Home"},
		{Path: "/1/calendars/work/", Name: "Work"},
	}

	all, err := selectCalendars(calendars, nil)
	if err != nil || len(all) != 2 {
		t.Errorf("expected all calendars, got %v (%v)", all, err)
	}

	work, err := selectCalendars(calendars, []string{"Work"})
	if err != nil || len(work) != 1 || work[0].Path != "/1/calendars/work/" {
		t.Errorf("expected Work only, got %v (%v)", work, err)
	}

	if _, err := selectCalendars(calendars, []string{"Missing"}); err == nil {
		t.Error("expected an error for an unknown calendar name")
	}
}

func TestCustomTransport(t *testing.T) {
	var got *http.Request
	tr := &customTransport{
		Username: "user",
		Password: "pass",
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			got = req
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}),
	}
	req, _ := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	if _, err := tr.RoundTrip(req); err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	if u, p, ok := got.BasicAuth(); !ok || u != "user" || p != "pass" {
		t.Errorf("basic auth not set: %q %q %v", u, p, ok)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
