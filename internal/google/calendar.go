package google

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"timeanalytics/internal/models"
	"timeanalytics/internal/period"
)

// CalendarClient provides a client for reading events from the Google Calendar API.
type CalendarClient struct {
	service     *calendar.Service
	logger      *slog.Logger
	calendarIDs []string
}

// NewCalendarClient creates a new Google Calendar client. When calendarIDs is
// empty every calendar in the account's calendar list is read.
func NewCalendarClient(ctx context.Context, logger *slog.Logger, httpClient *http.Client, calendarIDs []string, opts ...option.ClientOption) (*CalendarClient, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &CalendarClient{service: service, logger: logger, calendarIDs: calendarIDs}, nil
}

// Name identifies the source in logs.
func (c *CalendarClient) Name() string { return "google" }

// Fetch returns the events of every selected calendar within r. When
// updatedSince is set only events modified after it are returned.
func (c *CalendarClient) Fetch(ctx context.Context, r period.Range, updatedSince *time.Time) ([]models.RawEvent, error) {
	calendars, err := c.calendars(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Found calendars.", "count", len(calendars))

	var all []models.RawEvent
	for _, cal := range calendars {
		call := c.service.Events.List(cal.id).
			ShowDeleted(false).
			SingleEvents(true).
			TimeMin(r.Start.Format(time.RFC3339)).
			TimeMax(r.End.Format(time.RFC3339))
		if updatedSince != nil {
			call = call.OrderBy("updated").UpdatedMin(updatedSince.UTC().Format(time.RFC3339))
		} else {
			call = call.OrderBy("startTime")
		}

		err := call.Pages(ctx, func(page *calendar.Events) error {
			all = append(all, toRawEvents(page.Items, cal.name)...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve events for calendar %s: %w", cal.id, err)
		}
	}

	c.logger.Info("Successfully fetched events from Google Calendar", "count", len(all))
	return all, nil
}

type calendarRef struct {
	id   string
	name string
}

// calendars resolves the calendars to read along with their display names.
func (c *CalendarClient) calendars(ctx context.Context) ([]calendarRef, error) {
	names := make(map[string]string)
	var listed []calendarRef
	err := c.service.CalendarList.List().Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			name := item.Summary
			if item.SummaryOverride != "" {
				name = item.SummaryOverride
			}
			if name == "" {
				name = item.Id
			}
			names[item.Id] = name
			listed = append(listed, calendarRef{id: item.Id, name: name})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	if len(c.calendarIDs) == 0 {
		return listed, nil
	}
	refs := make([]calendarRef, 0, len(c.calendarIDs))
	for _, id := range c.calendarIDs {
		name, ok := names[id]
		if !ok {
			c.logger.Warn("Configured calendar is not in the calendar list.", "calendarID", id)
			name = id
		}
		refs = append(refs, calendarRef{id: id, name: name})
	}
	return refs, nil
}

// toRawEvents converts Google Calendar events to the internal RawEvent model.
// All-day events carry a Date instead of a DateTime.
func toRawEvents(items []*calendar.Event, calendarName string) []models.RawEvent {
	out := make([]models.RawEvent, 0, len(items))
	for _, item := range items {
		if item.Start == nil || item.End == nil {
			continue
		}
		out = append(out, models.RawEvent{
			ID:           item.Id,
			Title:        item.Summary,
			CalendarName: calendarName,
			StartRaw:     firstNonEmpty(item.Start.DateTime, item.Start.Date),
			EndRaw:       firstNonEmpty(item.End.DateTime, item.End.Date),
			IsAllDay:     item.Start.DateTime == "",
			Created:      item.Created,
			Updated:      item.Updated,
			Source:       "google",
		})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
