package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"timeanalytics/internal/ics"
	"timeanalytics/internal/models"
	"timeanalytics/internal/period"
)

// DefaultEndpoint is the iCloud CalDAV root.
const DefaultEndpoint = "https://caldav.icloud.com/"

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "timeanalytics/1.0")
	return t.Transport.RoundTrip(req)
}

// Client reads events from the calendars of a CalDAV account.
type Client struct {
	caldavClient *caldav.Client
	logger       *slog.Logger
	loc          *time.Location
	// names restricts reading to calendars with these display names.
	names []string
}

// NewClient creates a CalDAV event source. Floating times are read in loc.
func NewClient(logger *slog.Logger, endpoint, username, password string, calendarNames []string, loc *time.Location) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if loc == nil {
		loc = time.UTC
	}
	transport := &customTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}
	httpClient := &http.Client{Transport: transport, Timeout: 60 * time.Second}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	return &Client{caldavClient: caldavClient, logger: logger, loc: loc, names: calendarNames}, nil
}

// Name identifies the source in logs and on produced events.
func (c *Client) Name() string { return "caldav" }

// Fetch returns the occurrences within r from every selected calendar. The
// server filters by time range; updatedSince is applied to LAST-MODIFIED.
func (c *Client) Fetch(ctx context.Context, r period.Range, updatedSince *time.Time) ([]models.RawEvent, error) {
	calendars, err := c.findCalendars(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Found CalDAV calendars.", "count", len(calendars))

	var all []models.RawEvent
	for _, cal := range calendars {
		query := &caldav.CalendarQuery{
			CompRequest: caldav.CalendarCompRequest{
				Name:  "VCALENDAR",
				Comps: []caldav.CalendarCompRequest{{Name: "VEVENT", AllProps: true}},
			},
			CompFilter: caldav.CompFilter{
				Name:  "VCALENDAR",
				Comps: []caldav.CompFilter{{Name: "VEVENT", Start: r.Start.UTC(), End: r.End.UTC()}},
			},
		}
		objects, err := c.caldavClient.QueryCalendar(ctx, cal.Path, query)
		if err != nil {
			return nil, fmt.Errorf("failed to query calendar %q: %w", cal.Name, err)
		}

		data := make([]*ical.Calendar, 0, len(objects))
		for _, obj := range objects {
			if obj.Data != nil {
				data = append(data, obj.Data)
			}
		}
		events := toRawEvents(c.logger, data, cal.Name, r, updatedSince, c.loc)
		c.logger.Debug("Queried CalDAV calendar.", "calendar", cal.Name, "objects", len(objects), "events", len(events))
		all = append(all, events...)
	}

	c.logger.Info("Successfully fetched events from CalDAV", "count", len(all))
	return all, nil
}

// findCalendars discovers the user's calendars and keeps the configured ones.
func (c *Client) findCalendars(ctx context.Context) ([]caldav.Calendar, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendars: %w", err)
	}

	return selectCalendars(calendars, c.names)
}

// selectCalendars filters by display name. No names means every calendar.
func selectCalendars(calendars []caldav.Calendar, names []string) ([]caldav.Calendar, error) {
	if len(names) == 0 {
		return calendars, nil
	}
	byName := make(map[string]caldav.Calendar, len(calendars))
	for _, cal := range calendars {
		byName[cal.Name] = cal
	}
	out := make([]caldav.Calendar, 0, len(names))
	for _, name := range names {
		cal, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("no calendar found with name '%s'", name)
		}
		out = append(out, cal)
	}
	return out, nil
}

// toRawEvents expands the VEVENTs of the given calendar objects into raw
// events. Overrides are matched to their series across objects.
func toRawEvents(logger *slog.Logger, data []*ical.Calendar, calendarName string, r period.Range, updatedSince *time.Time, loc *time.Location) []models.RawEvent {
	var parsed []ics.ParsedEvent
	for _, cal := range data {
		for _, ev := range cal.Events() {
			p, err := toParsedEvent(ev, loc)
			if err != nil {
				logger.Debug("Skipping unreadable CalDAV event.", "calendar", calendarName, "error", err)
				continue
			}
			parsed = append(parsed, p)
		}
	}

	occs := ics.Expand(logger, parsed, r.Start, r.End, 0)
	out := make([]models.RawEvent, 0, len(occs))
	for _, occ := range occs {
		if updatedSince != nil && !occ.LastModified.IsZero() && !occ.LastModified.After(*updatedSince) {
			continue
		}
		out = append(out, ics.ToRawEvent(occ, calendarName, "caldav"))
	}
	return out
}

// toParsedEvent converts a go-ical event into the shared pre-expansion form.
func toParsedEvent(ev ical.Event, loc *time.Location) (ics.ParsedEvent, error) {
	var out ics.ParsedEvent

	uid, err := ev.Props.Text(ical.PropUID)
	if err != nil || uid == "" {
		return out, fmt.Errorf("missing UID")
	}
	out.UID = uid
	out.Summary, _ = ev.Props.Text(ical.PropSummary)

	startProp := ev.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return out, fmt.Errorf("event %s has no DTSTART", uid)
	}
	out.AllDay = startProp.ValueType() == ical.ValueDate

	if out.Start, err = ev.DateTimeStart(loc); err != nil {
		return out, fmt.Errorf("event %s: invalid DTSTART: %w", uid, err)
	}
	if out.End, err = ev.DateTimeEnd(loc); err != nil {
		return out, fmt.Errorf("event %s: invalid DTEND: %w", uid, err)
	}

	if p := ev.Props.Get(ical.PropRecurrenceRule); p != nil {
		out.RawRRule = p.Value
	}
	for _, p := range ev.Props[ical.PropExceptionDates] {
		exLoc := loc
		if tz := p.Params.Get(ical.ParamTimezoneID); tz != "" {
			if l, err := time.LoadLocation(tz); err == nil {
				exLoc = l
			}
		}
		out.ExDates = append(out.ExDates, ics.ParseTimeList(p.Value, exLoc)...)
	}
	if p := ev.Props.Get(ical.PropRecurrenceID); p != nil {
		if t, err := p.DateTime(loc); err == nil {
			out.Recurrence = &t
		}
	}

	out.Created, _ = ev.Props.DateTime(ical.PropCreated, time.UTC)
	out.LastModified, _ = ev.Props.DateTime(ical.PropLastModified, time.UTC)
	return out, nil
}
