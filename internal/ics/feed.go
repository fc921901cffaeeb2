package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"timeanalytics/internal/models"
	"timeanalytics/internal/period"
)

// Feed is an event source backed by a subscribed ICS URL.
type Feed struct {
	client *http.Client
	logger *slog.Logger
	id     string
	name   string
	url    string
}

// NewFeed creates an ICS feed source. A nil client gets a 15s timeout client.
func NewFeed(logger *slog.Logger, client *http.Client, id, name, feedURL string) *Feed {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if name == "" {
		name = id
	}
	return &Feed{client: client, logger: logger, id: id, name: name, url: feedURL}
}

// Name identifies the source in logs and on produced events.
func (f *Feed) Name() string { return "ics:" + f.id }

// Fetch downloads the feed and returns the occurrences within r. ICS feeds
// have no server-side change filter, so updatedSince is applied to
// LAST-MODIFIED after parsing; events without it are always kept.
func (f *Feed) Fetch(ctx context.Context, r period.Range, updatedSince *time.Time) ([]models.RawEvent, error) {
	if f.url == "" {
		return nil, errors.New("feed URL is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	f.logger.Info("Fetching ICS feed.", "id", f.id, "url", redactURL(f.url))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", f.id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch feed %s: %s", f.id, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", f.id, err)
	}

	parsed, skipped, err := Parse(body)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", f.id, err)
	}
	if skipped > 0 {
		f.logger.Warn("Skipped unreadable events.", "id", f.id, "count", skipped)
	}

	occs := Expand(f.logger, parsed, r.Start, r.End, 0)
	out := make([]models.RawEvent, 0, len(occs))
	for _, occ := range occs {
		if updatedSince != nil && !occ.LastModified.IsZero() && !occ.LastModified.After(*updatedSince) {
			continue
		}
		out = append(out, ToRawEvent(occ, f.name, f.Name()))
	}

	f.logger.Info("Fetched ICS feed.", "id", f.id, "events", len(parsed), "occurrences", len(out))
	return out, nil
}

// ToRawEvent converts an occurrence into the source-neutral raw form.
// Recurring instances get the instance key appended to keep IDs unique.
func ToRawEvent(occ Occurrence, calendarName, source string) models.RawEvent {
	id := occ.UID
	if occ.RawRRule != "" || occ.IsOverride() {
		id += "_" + occ.InstanceKey
	}

	raw := models.RawEvent{
		ID:           id,
		Title:        occ.Summary,
		CalendarName: calendarName,
		IsAllDay:     occ.AllDay,
		Source:       source,
	}
	if occ.AllDay {
		raw.StartRaw = occ.Start.Format(time.DateOnly)
		raw.EndRaw = occ.End.Format(time.DateOnly)
	} else {
		raw.StartRaw = occ.Start.Format(time.RFC3339)
		if !occ.End.IsZero() {
			raw.EndRaw = occ.End.Format(time.RFC3339)
		}
	}
	if !occ.Created.IsZero() {
		raw.Created = occ.Created.UTC().Format(time.RFC3339)
	}
	if !occ.LastModified.IsZero() {
		raw.Updated = occ.LastModified.UTC().Format(time.RFC3339)
	}
	return raw
}

// redactURL hides the query string, which often carries a private token.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
