package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"timeanalytics/internal/analytics"
	"timeanalytics/internal/cleaner"
	"timeanalytics/internal/config"
	"timeanalytics/internal/features"
	"timeanalytics/internal/google"
	"timeanalytics/internal/models"
	"timeanalytics/internal/period"
	"timeanalytics/internal/publish"
	"timeanalytics/internal/report"
	"timeanalytics/internal/state"
)

// EventSource delivers raw events for a time range.
type EventSource interface {
	Name() string
	Fetch(ctx context.Context, r period.Range, updatedSince *time.Time) ([]models.RawEvent, error)
}

// Renderer turns a run's data into report files.
type Renderer interface {
	Render(ctx context.Context, in report.Input) ([]string, error)
}

// Uploader stores report files remotely.
type Uploader interface {
	Upload(ctx context.Context, paths []string) ([]google.Uploaded, error)
}

// Publisher pushes a week's analytics to a period-keyed store.
type Publisher interface {
	Publish(ctx context.Context, label string, result analytics.Result, events []models.FeaturedEvent, force bool) ([]publish.Result, error)
}

// Notifier announces a finished run.
type Notifier interface {
	RunFinished(label string, result analytics.Result)
}

// Options selects the period and the optional stages of one run.
type Options struct {
	// Days is the lookback window; zero uses the configured default.
	Days int
	// Start and End (2006-01-02) select an explicit range.
	Start string
	End   string
	// LastWeek reports on the last full Monday to Sunday week and keeps the
	// month-to-date events for the monthly section.
	LastWeek bool

	SkipUpload  bool
	SkipNotion  bool
	Incremental bool
	Force       bool
}

// Summary describes what a run did.
type Summary struct {
	RunID     string
	Label     string
	Skipped   bool // the report already existed
	Fetched   int
	Processed int
	Result    analytics.Result
	Files     []string
	Uploaded  []google.Uploaded
	Published []publish.Result
}

// Pipeline orchestrates fetch, clean, feature extraction, analytics, rendering
// and publishing.
type Pipeline struct {
	logger    *slog.Logger
	cfg       *config.Config
	loc       *time.Location
	sources   []EventSource
	renderer  Renderer
	uploader  Uploader
	publisher Publisher
	notifier  Notifier
	now       func() time.Time
}

// New creates a Pipeline. uploader, publisher and notifier may be nil.
func New(logger *slog.Logger, cfg *config.Config, sources []EventSource, renderer Renderer, uploader Uploader, publisher Publisher, notifier Notifier) (*Pipeline, error) {
	if len(sources) == 0 {
		return nil, errors.New("no event sources configured")
	}
	if renderer == nil {
		return nil, errors.New("no report renderer configured")
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		logger:    logger,
		cfg:       cfg,
		loc:       loc,
		sources:   sources,
		renderer:  renderer,
		uploader:  uploader,
		publisher: publisher,
		notifier:  notifier,
		now:       time.Now,
	}, nil
}

// plan is the resolved period of one run.
type plan struct {
	fetch period.Range
	// week is set in last-week mode; only events inside it are analysed.
	week  *period.Range
	label string
	// days is the number of calendar days the fetch range covers.
	days int
}

func (p *Pipeline) resolve(now time.Time, opts Options) (plan, error) {
	today := now.In(p.loc)
	switch {
	case opts.LastWeek:
		monday, sunday := period.LastWeekRange(today)
		from := period.MonthToDateStart(today)
		if monday.Before(from) {
			from = monday
		}
		endOfWeek := sunday.AddDate(0, 0, 1).Add(-time.Second)
		return plan{
			fetch: period.Range{Start: from, End: endOfWeek},
			week:  &period.Range{Start: monday, End: endOfWeek},
			label: period.WeekLabel(sunday),
			days:  spanDays(from, sunday),
		}, nil
	case opts.Start != "" || opts.End != "":
		if opts.Start == "" || opts.End == "" {
			return plan{}, errors.New("start and end dates must be given together")
		}
		r, err := period.Explicit(opts.Start, opts.End)
		if err != nil {
			return plan{}, err
		}
		return plan{fetch: r, label: period.WeekLabel(r.End), days: spanDays(r.Start, r.End)}, nil
	default:
		days := opts.Days
		if days <= 0 {
			days = p.cfg.LookbackDays
		}
		return plan{fetch: period.Lookback(now, days), label: period.WeekLabel(today), days: days}, nil
	}
}

// spanDays counts the calendar days from start to end, both included.
func spanDays(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours()/24) + 1
}

// Run executes one pipeline run. An empty dataset ends the run early with a
// warning and no state write; it is not an error.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	now := p.now()
	summary := &Summary{RunID: state.NewRunID()}
	logger := p.logger.With("run_id", summary.RunID)

	pl, err := p.resolve(now, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve period: %w", err)
	}
	summary.Label = pl.label
	logger.Info("Starting pipeline run.", "label", pl.label, "range", pl.fetch.String(), "last_week", opts.LastWeek,
		"upload", !opts.SkipUpload, "incremental", opts.Incremental)

	if !opts.Force {
		exists, err := report.Exists(p.cfg.ReportDir, pl.label)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing report: %w", err)
		}
		if exists {
			logger.Info("Report for period already exists. Use --force to regenerate.", "label", pl.label, "file", report.SummaryPath(p.cfg.ReportDir, pl.label))
			summary.Skipped = true
			return summary, nil
		}
	}

	var since *time.Time
	if opts.Incremental && !opts.LastWeek {
		st, err := state.Load(p.cfg.StateFile)
		if err != nil {
			return nil, err
		}
		if since = st.Watermark(); since == nil {
			logger.Info("No previous run recorded, fetching the full range.", "file", p.cfg.StateFile)
		} else {
			logger.Info("Fetching events updated since last run.", "since", since.Format(time.RFC3339))
		}
	}

	raw, err := p.fetch(ctx, logger, pl.fetch, since)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	summary.Fetched = len(raw)
	if len(raw) == 0 {
		logger.Warn("No events found. Exiting.")
		return summary, nil
	}
	if path, err := state.ArchiveRaw(p.cfg.RawDataDir, raw, now); err != nil {
		logger.Warn("Failed to archive raw events.", "error", err)
	} else {
		logger.Debug("Archived raw events.", "file", path)
	}

	events, stats := cleaner.New(p.loc, logger).CleanWithStats(raw)
	summary.Processed = len(events)
	logger.Info("Processed events.", "kept", stats.Kept, "all_day", stats.AllDay, "unparseable", stats.Unparseable, "invalid_range", stats.InvalidRange)
	if len(events) == 0 {
		logger.Warn("No events after processing. Exiting.")
		return summary, nil
	}

	// Streaks are computed over the whole batch before the week is cut out.
	featured := features.Extract(events)
	logger.Info("Categories found.", "categories", features.CategoryCounts(featured))
	week, month := featured, []models.FeaturedEvent(nil)
	if pl.week != nil {
		week = inRange(featured, *pl.week)
		month = featured
		if len(week) == 0 {
			logger.Warn("No events in last week. Exiting.")
			return summary, nil
		}
		logger.Info("Split weekly and monthly data.", "week_events", len(week), "month_events", len(month))
	}

	result := analytics.Compute(week)
	summary.Result = result
	logger.Info("Computed analytics.", "result", result)

	files, err := p.renderer.Render(ctx, report.Input{Label: pl.label, Events: week, Result: result, Month: month})
	if err != nil {
		return nil, fmt.Errorf("failed to render reports: %w", err)
	}
	summary.Files = files

	if p.uploader != nil && !opts.SkipUpload {
		uploaded, err := p.uploader.Upload(ctx, files)
		if err != nil {
			return nil, fmt.Errorf("failed to upload reports: %w", err)
		}
		summary.Uploaded = uploaded
	} else {
		logger.Info("Upload skipped.")
	}

	if p.publisher != nil && !opts.SkipNotion {
		results, err := p.publisher.Publish(ctx, pl.label, result, week, opts.Force)
		summary.Published = results
		if err != nil {
			logger.Error("Notion upload failed (non-fatal).", "error", err)
		}
		for _, r := range results {
			logger.Info("Published to Notion.", "database", r.Table, "action", r.Action, "rows", r.Inserted, "failed", r.Failed)
		}
	} else {
		logger.Info("Notion upload skipped.")
	}

	if p.notifier != nil {
		p.notifier.RunFinished(pl.label, result)
	}

	st := state.RunState{
		RunID:            summary.RunID,
		LastRunUTC:       now.UTC(),
		DaysBack:         pl.days,
		EventsFetched:    len(raw),
		EventsProcessed:  len(events),
		ReportsGenerated: files,
	}
	if err := state.Save(p.cfg.StateFile, st); err != nil {
		logger.Error("Failed to save run state", "error", err)
	}

	logger.Info("Pipeline complete.", "hours", result.TotalHours, "events", result.TotalEvents)
	return summary, nil
}

// fetch reads every source. A failing source is logged and skipped; the
// fetch fails only when no source succeeded.
func (p *Pipeline) fetch(ctx context.Context, logger *slog.Logger, r period.Range, since *time.Time) ([]models.RawEvent, error) {
	var (
		all    []models.RawEvent
		failed int
		errs   []error
	)
	for _, src := range p.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		events, err := src.Fetch(ctx, r, since)
		if err != nil {
			failed++
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			logger.Error("Could not fetch events from source", "source", src.Name(), "error", err)
			continue
		}
		logger.Info("Fetched events.", "source", src.Name(), "count", len(events))
		all = append(all, events...)
	}
	if failed == len(p.sources) {
		return nil, errors.Join(errs...)
	}
	return all, nil
}

func inRange(events []models.FeaturedEvent, r period.Range) []models.FeaturedEvent {
	out := make([]models.FeaturedEvent, 0, len(events))
	for _, e := range events {
		if r.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out
}
