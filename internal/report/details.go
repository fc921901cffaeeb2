package report

import (
	"math"
	"sort"

	"timeanalytics/internal/analytics"
	"timeanalytics/internal/features"
	"timeanalytics/internal/models"
)

// MonthTotals is the month-to-date headline.
type MonthTotals struct {
	Hours  float64 `json:"hours"`
	Events int     `json:"events"`
}

// Job is the time spent on one title within a category.
type Job struct {
	Job      string  `json:"job"`
	Sessions int     `json:"sessions"`
	Hours    float64 `json:"hours"`
}

// CategoryJobs groups the jobs of one category with its totals.
type CategoryJobs struct {
	Category string  `json:"category"`
	Jobs     []Job   `json:"jobs"` // descending by hours
	Sessions int     `json:"sessions"`
	Hours    float64 `json:"hours"`
}

// Details is the per-job breakdown of the reported events.
type Details struct {
	Categories []CategoryJobs `json:"categories"` // ascending by category
	Sessions   int            `json:"sessions"`
	Hours      float64        `json:"hours"`
}

func monthTotals(month analytics.Result) MonthTotals {
	return MonthTotals{Hours: round2(month.TotalHours), Events: month.TotalEvents}
}

// jobDetails sums sessions and hours per (category, title). Category and
// grand totals add up the rounded job hours.
func jobDetails(events []models.FeaturedEvent) Details {
	type key struct{ category, title string }
	jobs := make(map[key]*Job)
	for _, e := range events {
		category := e.Category
		if category == "" {
			category = features.DefaultCategory
		}
		k := key{category, e.Title}
		j, ok := jobs[k]
		if !ok {
			j = &Job{Job: e.Title}
			jobs[k] = j
		}
		j.Sessions++
		j.Hours += e.DurationHours
	}

	byCategory := make(map[string]*CategoryJobs)
	for k, j := range jobs {
		j.Hours = round2(j.Hours)
		c, ok := byCategory[k.category]
		if !ok {
			c = &CategoryJobs{Category: k.category}
			byCategory[k.category] = c
		}
		c.Jobs = append(c.Jobs, *j)
		c.Sessions += j.Sessions
		c.Hours += j.Hours
	}

	details := Details{Categories: make([]CategoryJobs, 0, len(byCategory))}
	for _, c := range byCategory {
		sort.Slice(c.Jobs, func(a, b int) bool {
			if c.Jobs[a].Hours != c.Jobs[b].Hours {
				return c.Jobs[a].Hours > c.Jobs[b].Hours
			}
			return c.Jobs[a].Job < c.Jobs[b].Job
		})
		c.Hours = round2(c.Hours)
		details.Categories = append(details.Categories, *c)
		details.Sessions += c.Sessions
		details.Hours += c.Hours
	}
	sort.Slice(details.Categories, func(a, b int) bool {
		return details.Categories[a].Category < details.Categories[b].Category
	})
	details.Hours = round2(details.Hours)
	return details
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
