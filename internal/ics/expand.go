package ics

import (
	"log/slog"
	"time"

	"github.com/teambition/rrule-go"
)

const defaultMaxOccurrences = 5000

// Occurrence is one concrete instance of a ParsedEvent.
type Occurrence struct {
	ParsedEvent
	InstanceKey string
}

// Expand turns base events and their overrides into the occurrences that
// intersect [start, end]. Series longer than maxPerEvent are truncated; zero
// selects the default cap.
func Expand(logger *slog.Logger, events []ParsedEvent, start, end time.Time, maxPerEvent int) []Occurrence {
	if end.Before(start) {
		return nil
	}
	if maxPerEvent <= 0 {
		maxPerEvent = defaultMaxOccurrences
	}

	var (
		order     []string
		bases     = make(map[string][]ParsedEvent)
		overrides = make(map[string][]ParsedEvent)
	)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := bases[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		bases[ev.UID] = append(bases[ev.UID], ev)
	}

	var out []Occurrence
	for _, uid := range order {
		for _, ev := range bases[uid] {
			if ev.RawRRule == "" {
				if overlaps(ev.Start, ev.End, start, end) {
					out = append(out, occurrence(ev, overrides[uid], ev.Start, ev.End))
				}
				continue
			}
			out = append(out, expandSeries(logger, ev, overrides[uid], start, end, maxPerEvent)...)
		}
	}
	return out
}

func expandSeries(logger *slog.Logger, ev ParsedEvent, overrides []ParsedEvent, start, end time.Time, maxPerEvent int) []Occurrence {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		logger.Warn("Skipping event with invalid RRULE.", "uid", ev.UID, "rrule", ev.RawRRule, "error", err)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	starts := set.Between(start.In(loc), end.In(loc), true)
	if len(starts) > maxPerEvent {
		logger.Warn("Truncated recurring event.", "uid", ev.UID, "cap", maxPerEvent)
		starts = starts[:maxPerEvent]
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		e := s.Add(dur)
		if ev.AllDay {
			s = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
			e = s.AddDate(0, 0, 1)
		}
		out = append(out, occurrence(ev, overrides, s, e))
	}
	return out
}

// occurrence applies the override whose RECURRENCE-ID equals start, if any.
func occurrence(ev ParsedEvent, overrides []ParsedEvent, start, end time.Time) Occurrence {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			ev, start, end = ov, ov.Start, ov.End
			break
		}
	}
	ev.Start, ev.End = start, end
	return Occurrence{ParsedEvent: ev, InstanceKey: start.UTC().Format(time.RFC3339)}
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.IsZero() {
		aEnd = aStart
	}
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
