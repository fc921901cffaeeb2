package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"timeanalytics/internal/analytics"
	"timeanalytics/internal/models"
)

// Input is everything a renderer gets for one run.
type Input struct {
	// Label is the period key, e.g. 2026_W07.
	Label  string
	Events []models.FeaturedEvent
	Result analytics.Result
	// Month optionally holds the month-to-date events; when nil the monthly
	// section is derived from Events.
	Month []models.FeaturedEvent
}

// Document is the JSON report layout. The month fields cover Input.Month;
// Details covers Input.Events.
type Document struct {
	Label           string                    `json:"label"`
	GeneratedAt     time.Time                 `json:"generated_at"`
	Summary         analytics.Result          `json:"summary"`
	Monthly         []analytics.Bucket        `json:"monthly"`
	MonthTotals     MonthTotals               `json:"month_totals"`
	MonthCategories []analytics.CategoryShare `json:"month_categories"`
	MonthWeekly     []analytics.Bucket        `json:"month_weekly"`
	Details         Details                   `json:"details"`
}

// FileRenderer writes a JSON summary and a CSV event log into a directory.
type FileRenderer struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewFileRenderer creates a renderer writing into dir.
func NewFileRenderer(logger *slog.Logger, dir string) *FileRenderer {
	return &FileRenderer{dir: dir, logger: logger, now: time.Now}
}

// SummaryPath is where the JSON report for label lives.
func SummaryPath(dir, label string) string {
	return filepath.Join(dir, fmt.Sprintf("weekly_report_%s.json", label))
}

// Exists reports whether the report for label has already been written.
func Exists(dir, label string) (bool, error) {
	_, err := os.Stat(SummaryPath(dir, label))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Render writes the report files and returns their paths. Empty tables are
// written as empty arrays.
func (r *FileRenderer) Render(ctx context.Context, in Input) ([]string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	monthScope := in.Month
	if monthScope == nil {
		monthScope = in.Events
	}
	month := analytics.Compute(monthScope)

	doc := Document{
		Label:           in.Label,
		GeneratedAt:     r.now().UTC(),
		Summary:         in.Result,
		Monthly:         month.MonthlyHours,
		MonthTotals:     monthTotals(month),
		MonthCategories: month.CategoryRatios,
		MonthWeekly:     roundBuckets(month.WeeklyHours),
		Details:         jobDetails(in.Events),
	}

	summaryPath := SummaryPath(r.dir, in.Label)
	if err := writeJSON(summaryPath, doc); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	eventsPath := filepath.Join(r.dir, fmt.Sprintf("events_%s.csv", in.Label))
	if err := writeEventsCSV(eventsPath, in.Events); err != nil {
		return nil, err
	}

	files := []string{summaryPath, eventsPath}
	r.logger.Info("Generated report files.", "count", len(files), "dir", r.dir)
	return files, nil
}

func roundBuckets(buckets []analytics.Bucket) []analytics.Bucket {
	out := make([]analytics.Bucket, len(buckets))
	for i, b := range buckets {
		out[i] = analytics.Bucket{Key: b.Key, Hours: round2(b.Hours)}
	}
	return out
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

var csvHeader = []string{
	"date", "day_of_week", "start", "end", "title", "calendar", "category",
	"hours", "iso_week", "month", "streak", "daily_ratio",
}

func writeEventsCSV(path string, events []models.FeaturedEvent) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range events {
		row := []string{
			e.DateKey(),
			e.DayOfWeek,
			e.Start.Format(time.RFC3339),
			e.End.Format(time.RFC3339),
			e.Title,
			e.CalendarName,
			e.Category,
			strconv.FormatFloat(e.DurationHours, 'f', 2, 64),
			e.ISOWeekKey,
			e.Month,
			strconv.Itoa(e.Streak),
			strconv.FormatFloat(e.DailyRatio, 'f', 3, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
