package notion

import (
	"math"
	"time"

	"github.com/jomei/notionapi"

	"timeanalytics/internal/analytics"
	"timeanalytics/internal/features"
	"timeanalytics/internal/models"
)

// maxTitleRunes is Notion's limit on a title property.
const maxTitleRunes = 2000

// SummaryRow is one Weekly Summary page.
type SummaryRow struct {
	TotalHours     float64
	Events         int
	AvgDaily       float64
	Consistency    float64
	Focus          float64
	Streak         int
	TrendDirection string
	Slope          float64
}

// NewSummaryRow rounds the result's metrics for display.
func NewSummaryRow(r analytics.Result) SummaryRow {
	return SummaryRow{
		TotalHours:     round(r.TotalHours, 2),
		Events:         r.TotalEvents,
		AvgDaily:       round(r.AvgDailyHours, 2),
		Consistency:    round(r.ConsistencyScore, 3),
		Focus:          round(r.FocusScore, 3),
		Streak:         r.MaxStreak,
		TrendDirection: r.WeeklyTrendDirection,
		Slope:          r.WeeklyTrendSlope,
	}
}

// EventRow is one Event Log page.
type EventRow struct {
	Job      string
	Date     time.Time
	Category string
	Hours    float64
	Month    string
}

// NewEventRows builds one row per event.
func NewEventRows(events []models.FeaturedEvent) []EventRow {
	rows := make([]EventRow, 0, len(events))
	for _, e := range events {
		category := e.Category
		if category == "" {
			category = features.DefaultCategory
		}
		rows = append(rows, EventRow{
			Job:      truncate(e.Title, maxTitleRunes),
			Date:     e.Date,
			Category: category,
			Hours:    round(e.DurationHours, 2),
			Month:    e.Month,
		})
	}
	return rows
}

func summarySchema() notionapi.PropertyConfigs {
	return notionapi.PropertyConfigs{
		"Week":            notionapi.TitlePropertyConfig{Type: notionapi.PropertyConfigTypeTitle},
		"Total Hours":     numberConfig(),
		"Events":          numberConfig(),
		"Avg Daily":       numberConfig(),
		"Consistency":     numberConfig(),
		"Focus":           numberConfig(),
		"Streak":          numberConfig(),
		"Trend Direction": notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
		"Slope":           numberConfig(),
	}
}

func eventLogSchema() notionapi.PropertyConfigs {
	return notionapi.PropertyConfigs{
		"Job":      notionapi.TitlePropertyConfig{Type: notionapi.PropertyConfigTypeTitle},
		"Date":     notionapi.DatePropertyConfig{Type: notionapi.PropertyConfigTypeDate},
		"Category": notionapi.SelectPropertyConfig{Type: notionapi.PropertyConfigTypeSelect},
		"Hours":    numberConfig(),
		"Week":     notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
		"Month":    notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
	}
}

func numberConfig() notionapi.NumberPropertyConfig {
	return notionapi.NumberPropertyConfig{
		Type:   notionapi.PropertyConfigTypeNumber,
		Number: notionapi.NumberFormat{Format: notionapi.FormatNumber},
	}
}

func summaryProperties(week string, row SummaryRow) notionapi.Properties {
	return notionapi.Properties{
		"Week":            notionapi.TitleProperty{Title: text(week)},
		"Total Hours":     notionapi.NumberProperty{Number: row.TotalHours},
		"Events":          notionapi.NumberProperty{Number: float64(row.Events)},
		"Avg Daily":       notionapi.NumberProperty{Number: row.AvgDaily},
		"Consistency":     notionapi.NumberProperty{Number: row.Consistency},
		"Focus":           notionapi.NumberProperty{Number: row.Focus},
		"Streak":          notionapi.NumberProperty{Number: float64(row.Streak)},
		"Trend Direction": notionapi.RichTextProperty{RichText: text(row.TrendDirection)},
		"Slope":           notionapi.NumberProperty{Number: row.Slope},
	}
}

func eventProperties(week string, row EventRow) notionapi.Properties {
	props := notionapi.Properties{
		"Job":      notionapi.TitleProperty{Title: text(row.Job)},
		"Category": notionapi.SelectProperty{Select: notionapi.Option{Name: row.Category}},
		"Hours":    notionapi.NumberProperty{Number: row.Hours},
		"Week":     notionapi.RichTextProperty{RichText: text(week)},
		"Month":    notionapi.RichTextProperty{RichText: text(row.Month)},
	}
	if !row.Date.IsZero() {
		d := notionapi.Date(row.Date)
		props["Date"] = notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}
	}
	return props
}

func text(s string) []notionapi.RichText {
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
