package google

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"timeanalytics/internal/period"
)

func TestToRawEvents(t *testing.T) {
	items := []*calendar.Event{
		{
			Id:      "timed",
			Summary: "[Work] Standup",
			Start:   &calendar.EventDateTime{DateTime: "2025-03-10T09:00:00+01:00"},
			End:     &calendar.EventDateTime{DateTime: "2025-03-10T09:15:00+01:00"},
			Created: "2025-03-01T10:00:00Z",
			Updated: "2025-03-02T10:00:00Z",
		},
		{
			Id:      "allday",
			Summary: "Holiday",
			Start:   &calendar.EventDateTime{Date: "2025-03-11"},
			End:     &calendar.EventDateTime{Date: "2025-03-12"},
		},
		{Id: "broken", Summary: "No times"},
	}

	raw := toRawEvents(items, "Personal")
	if len(raw) != 2 {
		t.Fatalf("expected 2 events, got %d", len(raw))
	}
	if raw[0].IsAllDay || raw[0].StartRaw != "2025-03-10T09:00:00+01:00" || raw[0].CalendarName != "Personal" {
		t.Errorf("timed event: got %+v", raw[0])
	}
	if raw[0].Updated != "2025-03-02T10:00:00Z" || raw[0].Source != "google" {
		t.Errorf("timed event metadata: got %+v", raw[0])
	}
	if !raw[1].IsAllDay || raw[1].StartRaw != "2025-03-11" || raw[1].EndRaw != "2025-03-12" {
		t.Errorf("all-day event: got %+v", raw[1])
	}
}

// fakeCalendarAPI serves a calendar list and paged event lists.
type fakeCalendarAPI struct {
	mu         sync.Mutex
	updatedMin []string
}

func (f *fakeCalendarAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/users/me/calendarList"):
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "primary", "summary": "Personal"},
				{"id": "work", "summary": "Work", "summaryOverride": "Job"},
			},
		})
	case strings.HasSuffix(r.URL.Path, "/calendars/primary/events"):
		f.mu.Lock()
		f.updatedMin = append(f.updatedMin, r.URL.Query().Get("updatedMin"))
		f.mu.Unlock()
		if r.URL.Query().Get("pageToken") == "" {
			json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{
					{"id": "p1", "summary": "Read", "start": map[string]string{"dateTime": "2025-03-10T09:00:00Z"}, "end": map[string]string{"dateTime": "2025-03-10T10:00:00Z"}},
				},
				"nextPageToken": "next",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "p2", "summary": "Write", "start": map[string]string{"dateTime": "2025-03-11T09:00:00Z"}, "end": map[string]string{"dateTime": "2025-03-11T10:00:00Z"}},
			},
		})
	case strings.HasSuffix(r.URL.Path, "/calendars/work/events"):
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "w1", "summary": "Meeting", "start": map[string]string{"dateTime": "2025-03-10T13:00:00Z"}, "end": map[string]string{"dateTime": "2025-03-10T14:00:00Z"}},
			},
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestCalendarClient(t *testing.T, api http.Handler, ids []string) *CalendarClient {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := NewCalendarClient(context.Background(), logger, srv.Client(), ids, option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewCalendarClient failed: %v", err)
	}
	return c
}

func TestFetchAllCalendars(t *testing.T) {
	api := &fakeCalendarAPI{}
	c := newTestCalendarClient(t, api, nil)

	r := period.Range{Start: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 16, 23, 59, 59, 0, time.UTC)}
	events, err := c.Fetch(context.Background(), r, nil)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events across pages and calendars, got %d", len(events))
	}
	byID := make(map[string]string)
	for _, e := range events {
		byID[e.ID] = e.CalendarName
	}
	if byID["p1"] != "Personal" || byID["p2"] != "Personal" || byID["w1"] != "Job" {
		t.Errorf("calendar names: got %v", byID)
	}
}

func TestFetchSelectedCalendarIncremental(t *testing.T) {
	api := &fakeCalendarAPI{}
	c := newTestCalendarClient(t, api, []string{"primary"})

	since := time.Date(2025, 3, 9, 7, 0, 0, 0, time.UTC)
	r := period.Lookback(time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC), 7)
	events, err := c.Fetch(context.Background(), r, &since)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected only primary events, got %d", len(events))
	}
	if len(api.updatedMin) == 0 || api.updatedMin[0] != "2025-03-09T07:00:00Z" {
		t.Errorf("updatedMin not sent: %v", api.updatedMin)
	}
}
