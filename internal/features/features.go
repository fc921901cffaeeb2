package features

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"timeanalytics/internal/models"
)

// DefaultCategory is assigned when no resolver in the chain matches.
const DefaultCategory = "Uncategorized"

var categoryPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// Resolver looks up a category for an event, reporting false on no match.
type Resolver func(models.Event) (string, bool)

// DefaultChain is the category precedence: title tag, then calendar name.
var DefaultChain = []Resolver{TitleTag, CalendarName}

// TitleTag resolves the first [Tag] found anywhere in the title.
func TitleTag(e models.Event) (string, bool) {
	m := categoryPattern.FindStringSubmatch(e.Title)
	if m == nil {
		return "", false
	}
	tag := strings.TrimSpace(m[1])
	return tag, tag != ""
}

// CalendarName resolves the event's calendar name when it is set.
func CalendarName(e models.Event) (string, bool) {
	return e.CalendarName, e.CalendarName != ""
}

// Categorize runs the chain and stops at the first match.
func Categorize(e models.Event, chain []Resolver) string {
	for _, resolve := range chain {
		if c, ok := resolve(e); ok {
			return c
		}
	}
	return DefaultCategory
}

// ISOWeekKey formats t's ISO-8601 week as "2025-W01". The year is the ISO
// week-year, which differs from t.Year() around new year.
func ISOWeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// Extract enriches canonical events with category, ISO week key, active-day
// streak and daily ratio using the default category chain.
func Extract(events []models.Event) []models.FeaturedEvent {
	return ExtractWith(events, DefaultChain)
}

// ExtractWith is Extract with a custom category chain.
func ExtractWith(events []models.Event, chain []Resolver) []models.FeaturedEvent {
	out := make([]models.FeaturedEvent, 0, len(events))
	if len(events) == 0 {
		return out
	}

	streaks := Streaks(events)
	dailyTotals := make(map[time.Time]float64)
	for _, e := range events {
		dailyTotals[e.Date] += e.DurationHours
	}

	for _, e := range events {
		out = append(out, models.FeaturedEvent{
			Event:      e,
			Category:   Categorize(e, chain),
			ISOWeekKey: ISOWeekKey(e.Start),
			Streak:     streaks[e.Date],
			DailyRatio: e.DurationHours / dailyTotals[e.Date],
		})
	}
	return out
}

// Streaks maps every distinct date of the batch to the length of the run of
// consecutive active dates ending on it. It must see the whole batch: a date
// missing from events breaks the run.
func Streaks(events []models.Event) map[time.Time]int {
	seen := make(map[time.Time]struct{})
	for _, e := range events {
		seen[e.Date] = struct{}{}
	}
	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	streaks := make(map[time.Time]int, len(dates))
	run := 0
	for i, d := range dates {
		if i > 0 && dates[i-1].AddDate(0, 0, 1).Equal(d) {
			run++
		} else {
			run = 1
		}
		streaks[d] = run
	}
	return streaks
}

// CategoryCounts counts featured events per category.
func CategoryCounts(events []models.FeaturedEvent) map[string]int {
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.Category]++
	}
	return counts
}
