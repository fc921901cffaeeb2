package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// ParsedEvent is a VEVENT before recurrence expansion. CalDAV results are
// converted into the same shape so both sources share Expand.
type ParsedEvent struct {
	UID     string
	Summary string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, set on overridden instances

	Created      time.Time
	LastModified time.Time
}

// IsOverride reports whether the event replaces one instance of a series.
func (p ParsedEvent) IsOverride() bool {
	return p.Recurrence != nil
}

// Parse parses an ICS payload. A VEVENT that cannot be read is skipped and
// reported through the returned skip count rather than failing the feed.
func Parse(body []byte) ([]ParsedEvent, int, error) {
	if len(body) == 0 {
		return nil, 0, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse calendar: %w", err)
	}

	var (
		events  []ParsedEvent
		skipped int
	)
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, err := ve.GetStartAt()
	if err != nil {
		if start, err = ParseTime(dtStart.Value, tzid(dtStart.ICalParameters)); err != nil {
			return out, fmt.Errorf("invalid DTSTART: %w", err)
		}
	}
	out.Start = start

	// A missing DTEND leaves End at the zero time; such events are dropped
	// later as having no positive duration.
	if end, err := ve.GetEndAt(); err == nil {
		out.End = end
	} else if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		out.End, _ = ParseTime(dtEnd.Value, tzid(dtEnd.ICalParameters))
	}

	// VALUE=DATE or a bare YYYYMMDD value marks an all-day event.
	if vs, ok := dtStart.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		out.AllDay = true
	}
	if !strings.Contains(dtStart.Value, "T") {
		out.AllDay = true
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		out.ExDates = append(out.ExDates, ParseTimeList(p.Value, tzid(p.ICalParameters))...)
	}
	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := ParseTime(p.Value, tzid(p.ICalParameters)); err == nil {
			out.Recurrence = &t
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyCreated); p != nil {
		out.Created, _ = ParseTime(p.Value, nil)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLastModified); p != nil {
		out.LastModified, _ = ParseTime(p.Value, nil)
	}

	return out, nil
}

func tzid(params map[string][]string) *time.Location {
	if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
		if loc, err := time.LoadLocation(tzs[0]); err == nil {
			return loc
		}
	}
	return nil
}

// ParseTimeList parses a comma separated EXDATE value.
func ParseTimeList(value string, loc *time.Location) []time.Time {
	var out []time.Time
	for _, part := range strings.Split(value, ",") {
		if t, err := ParseTime(part, loc); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// ParseTime parses an ICS DATE or DATE-TIME. Floating values are read in
// loc, or UTC when loc is nil.
func ParseTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if loc == nil {
		loc = time.UTC
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	// Date-only (all-day), e.g., 20250101
	return time.ParseInLocation("20060102", v, loc)
}
