package analytics

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"timeanalytics/internal/models"
)

// Trend directions.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// trendThreshold is the weekly slope, in hours per week, beyond which the
// trend is no longer considered stable.
const trendThreshold = 0.5

// Bucket is the total hours of one weekly or monthly group.
type Bucket struct {
	Key   string  `json:"key"`
	Hours float64 `json:"hours"`
}

// CategoryShare is the total hours of one category and its share of all hours.
type CategoryShare struct {
	Category string  `json:"category"`
	Hours    float64 `json:"hours"`
	Ratio    float64 `json:"ratio"`
}

// Result is a snapshot of the metrics computed over one featured dataset.
// It is built once by Compute and not modified afterwards.
type Result struct {
	TotalHours    float64 `json:"total_hours"`
	TotalEvents   int     `json:"total_events"`
	AvgDailyHours float64 `json:"avg_daily_hours"`

	WeeklyHours  []Bucket `json:"weekly_hours"`  // ascending by ISO week key
	MonthlyHours []Bucket `json:"monthly_hours"` // ascending by month

	// CategoryHours is sorted by hours, largest first. Its Ratio column is
	// left at zero; CategoryRatios carries the same rows with ratios set.
	CategoryHours  []CategoryShare `json:"category_hours"`
	CategoryRatios []CategoryShare `json:"category_ratios"`

	ConsistencyScore float64 `json:"consistency_score"`
	FocusScore       float64 `json:"focus_score"`
	MaxStreak        int     `json:"max_streak"`

	WeeklyTrendSlope     float64 `json:"weekly_trend_slope"`
	WeeklyTrendDirection string  `json:"weekly_trend_direction"`
}

// Compute derives every metric from the featured events. An empty input
// yields the zero result with a stable trend, not an error.
func Compute(events []models.FeaturedEvent) Result {
	result := Result{
		WeeklyHours:          []Bucket{},
		MonthlyHours:         []Bucket{},
		CategoryHours:        []CategoryShare{},
		CategoryRatios:       []CategoryShare{},
		WeeklyTrendDirection: TrendStable,
	}
	if len(events) == 0 {
		return result
	}

	daily := make(map[time.Time]float64)
	weekly := make(map[string]float64)
	monthly := make(map[string]float64)
	categories := make(map[string]float64)
	for _, e := range events {
		result.TotalHours += e.DurationHours
		daily[e.Date] += e.DurationHours
		weekly[e.ISOWeekKey] += e.DurationHours
		monthly[e.Month] += e.DurationHours
		categories[e.Category] += e.DurationHours
		if e.Streak > result.MaxStreak {
			result.MaxStreak = e.Streak
		}
	}
	result.TotalEvents = len(events)

	if len(daily) > 0 {
		result.AvgDailyHours = result.TotalHours / float64(len(daily))
	}

	result.WeeklyHours = sortedBuckets(weekly)
	result.MonthlyHours = sortedBuckets(monthly)
	result.CategoryHours, result.CategoryRatios = categoryTables(categories)

	dailyTotals := make([]float64, 0, len(daily))
	for _, h := range daily {
		dailyTotals = append(dailyTotals, h)
	}
	result.ConsistencyScore = Consistency(dailyTotals)

	hours := make([]float64, len(result.CategoryHours))
	for i, c := range result.CategoryHours {
		hours[i] = c.Hours
	}
	result.FocusScore = Herfindahl(hours)

	if len(result.WeeklyHours) >= 2 {
		series := make([]float64, len(result.WeeklyHours))
		for i, b := range result.WeeklyHours {
			series[i] = b.Hours
		}
		slope := Slope(series)
		result.WeeklyTrendSlope = math.Round(slope*100) / 100
		result.WeeklyTrendDirection = Direction(slope)
	}

	return result
}

// LogValue implements slog.LogValuer.
func (r Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("total_hours", math.Round(r.TotalHours*10)/10),
		slog.Int("events", r.TotalEvents),
		slog.Float64("consistency", math.Round(r.ConsistencyScore*100)/100),
		slog.Float64("focus", math.Round(r.FocusScore*100)/100),
		slog.Int("max_streak", r.MaxStreak),
		slog.String("trend", r.WeeklyTrendDirection),
		slog.Float64("slope", r.WeeklyTrendSlope),
	)
}

func sortedBuckets(m map[string]float64) []Bucket {
	out := make([]Bucket, 0, len(m))
	for k, h := range m {
		out = append(out, Bucket{Key: k, Hours: h})
	}
	// Zero-padded week and month keys sort chronologically.
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func categoryTables(m map[string]float64) (hours, ratios []CategoryShare) {
	hours = make([]CategoryShare, 0, len(m))
	var total float64
	for c, h := range m {
		hours = append(hours, CategoryShare{Category: c, Hours: h})
		total += h
	}
	sort.Slice(hours, func(i, j int) bool {
		if hours[i].Hours != hours[j].Hours {
			return hours[i].Hours > hours[j].Hours
		}
		return hours[i].Category < hours[j].Category
	})

	ratios = make([]CategoryShare, len(hours))
	copy(ratios, hours)
	if total > 0 {
		for i := range ratios {
			ratios[i].Ratio = ratios[i].Hours / total
		}
	}
	return hours, ratios
}

// Consistency scores day-to-day stability as 1 / (1 + sample stddev).
// Fewer than two days count as perfectly consistent.
func Consistency(dailyTotals []float64) float64 {
	sd, ok := SampleStdDev(dailyTotals)
	if !ok {
		return 1.0
	}
	return 1.0 / (1.0 + sd)
}

// SampleStdDev returns the n-1 standard deviation, or false for fewer than
// two values.
func SampleStdDev(values []float64) (float64, bool) {
	n := len(values)
	if n < 2 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n-1)), true
}

// Herfindahl returns the sum of squared shares, or 0 when the total is 0.
func Herfindahl(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		return 0
	}
	var hhi float64
	for _, v := range values {
		share := v / total
		hhi += share * share
	}
	return hhi
}

// Slope fits an ordinary least-squares line of values against their index.
func Slope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := float64(n)*sumX2 - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (float64(n)*sumXY - sumX*sumY) / denom
}

// Direction classifies a weekly slope.
func Direction(slope float64) string {
	switch {
	case slope > trendThreshold:
		return TrendIncreasing
	case slope < -trendThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
