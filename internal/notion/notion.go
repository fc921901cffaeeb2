package notion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jomei/notionapi"

	"timeanalytics/internal/analytics"
	"timeanalytics/internal/models"
	"timeanalytics/internal/publish"
)

// Database titles, also used as table names in upsert results.
const (
	SummaryDatabase  = "Weekly Summary"
	EventLogDatabase = "Event Log"
)

// Notion allows roughly three requests per second per integration.
const defaultPace = 350 * time.Millisecond

// Publisher pushes a week's analytics to the Weekly Summary and Event Log
// databases.
type Publisher struct {
	client       *notionapi.Client
	logger       *slog.Logger
	parentPageID string
	pace         time.Duration

	mu           sync.Mutex
	summaryDBID  string
	eventLogDBID string
}

// NewPublisher creates a Notion publisher. Database IDs may be empty, in which
// case the databases are looked up by title under parentPageID, and created
// there when missing.
func NewPublisher(logger *slog.Logger, token, parentPageID, summaryDBID, eventLogDBID string, opts ...notionapi.ClientOption) *Publisher {
	opts = append([]notionapi.ClientOption{notionapi.WithRetry(3)}, opts...)
	return &Publisher{
		client:       notionapi.NewClient(notionapi.Token(token), opts...),
		logger:       logger,
		parentPageID: parentPageID,
		summaryDBID:  summaryDBID,
		eventLogDBID: eventLogDBID,
		pace:         defaultPace,
	}
}

// Publish upserts one summary row and one event-log row per event for label.
func (p *Publisher) Publish(ctx context.Context, label string, result analytics.Result, events []models.FeaturedEvent, force bool) ([]publish.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	summaryID, err := p.database(ctx, p.summaryDBID, SummaryDatabase, summarySchema())
	if err != nil {
		return nil, err
	}
	p.summaryDBID = summaryID

	eventLogID, err := p.database(ctx, p.eventLogDBID, EventLogDatabase, eventLogSchema())
	if err != nil {
		return nil, err
	}
	p.eventLogDBID = eventLogID

	summary := &table[SummaryRow]{
		client:     p.client,
		name:       SummaryDatabase,
		dbID:       notionapi.DatabaseID(summaryID),
		key:        "Week",
		keyIsTitle: true,
		properties: summaryProperties,
		pace:       p.pace,
	}
	eventLog := &table[EventRow]{
		client:     p.client,
		name:       EventLogDatabase,
		dbID:       notionapi.DatabaseID(eventLogID),
		key:        "Week",
		properties: eventProperties,
		pace:       p.pace,
	}

	var results []publish.Result
	res, err := publish.Upsert(ctx, p.logger, summary, label, []SummaryRow{NewSummaryRow(result)}, force)
	if err != nil {
		return results, err
	}
	results = append(results, res)

	res, err = publish.Upsert(ctx, p.logger, eventLog, label, NewEventRows(events), force)
	if err != nil {
		return results, err
	}
	results = append(results, res)
	return results, nil
}

// database returns id when set. Otherwise it reuses a database with the given
// title under the parent page, or creates one there.
func (p *Publisher) database(ctx context.Context, id, title string, schema notionapi.PropertyConfigs) (string, error) {
	if id != "" {
		return id, nil
	}
	if p.parentPageID == "" {
		return "", fmt.Errorf("no database ID for %q and no parent page to create it under", title)
	}

	found, err := p.findDatabase(ctx, title)
	if err != nil {
		return "", fmt.Errorf("failed to search notion database %q: %w", title, err)
	}
	if found != "" {
		p.logger.Info("Found existing Notion database.", "title", title, "id", found)
		return found, nil
	}

	db, err := p.client.Database.Create(ctx, &notionapi.DatabaseCreateRequest{
		Parent: notionapi.Parent{
			Type:   notionapi.ParentTypePageID,
			PageID: notionapi.PageID(p.parentPageID),
		},
		Title:      []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: title}}},
		Properties: schema,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create notion database %q: %w", title, err)
	}
	p.logger.Info("Created Notion database.", "title", title, "id", db.ID)
	return string(db.ID), nil
}

// findDatabase returns the ID of a live database titled title whose parent
// is the publisher's parent page, or "" when there is none. Search matches
// titles by substring and spans the whole workspace.
func (p *Publisher) findDatabase(ctx context.Context, title string) (string, error) {
	parent := normalizeID(p.parentPageID)
	req := &notionapi.SearchRequest{
		Query:  title,
		Filter: notionapi.SearchFilter{Property: "object", Value: notionapi.ObjectTypeDatabase.String()},
	}
	for {
		resp, err := p.client.Search.Do(ctx, req)
		if err != nil {
			return "", err
		}
		for _, obj := range resp.Results {
			db, ok := obj.(*notionapi.Database)
			if !ok || db.Archived {
				continue
			}
			if db.Parent.Type != notionapi.ParentTypePageID || normalizeID(string(db.Parent.PageID)) != parent {
				continue
			}
			if plainText(db.Title) == title {
				return string(db.ID), nil
			}
		}
		if !resp.HasMore {
			return "", nil
		}
		req.StartCursor = resp.NextCursor
	}
}

// normalizeID strips the dashes Notion adds to IDs in API responses.
func normalizeID(id string) string {
	return strings.ToLower(strings.ReplaceAll(id, "-", ""))
}

func plainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, t := range rt {
		switch {
		case t.PlainText != "":
			b.WriteString(t.PlainText)
		case t.Text != nil:
			b.WriteString(t.Text.Content)
		}
	}
	return b.String()
}

// table is a Notion database whose pages are keyed by a rich-text or title
// property holding the period label.
type table[R any] struct {
	client     *notionapi.Client
	name       string
	dbID       notionapi.DatabaseID
	key        string
	keyIsTitle bool
	properties func(period string, row R) notionapi.Properties
	pace       time.Duration
}

// titleFilter is a property filter on a title column, which
// notionapi.PropertyFilter has no field for.
type titleFilter struct {
	notionapi.PropertyFilter
	Title *notionapi.TextFilterCondition `json:"title,omitempty"`
}

func (t *table[R]) Name() string { return t.name }

func (t *table[R]) filter(period string) notionapi.Filter {
	cond := &notionapi.TextFilterCondition{Equals: period}
	if t.keyIsTitle {
		return titleFilter{PropertyFilter: notionapi.PropertyFilter{Property: t.key}, Title: cond}
	}
	return notionapi.PropertyFilter{Property: t.key, RichText: cond}
}

func (t *table[R]) Find(ctx context.Context, period string) ([]string, error) {
	req := &notionapi.DatabaseQueryRequest{Filter: t.filter(period)}

	var ids []string
	for {
		resp, err := t.client.Database.Query(ctx, t.dbID, req)
		if err != nil {
			return nil, err
		}
		for _, page := range resp.Results {
			ids = append(ids, string(page.ID))
		}
		if !resp.HasMore {
			return ids, nil
		}
		req.StartCursor = resp.NextCursor
	}
}

func (t *table[R]) Archive(ctx context.Context, id string) error {
	_, err := t.client.Page.Update(ctx, notionapi.PageID(id), &notionapi.PageUpdateRequest{
		Archived:   true,
		Properties: notionapi.Properties{},
	})
	return err
}

func (t *table[R]) Insert(ctx context.Context, period string, row R) error {
	if t.pace > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.pace):
		}
	}
	_, err := t.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: t.dbID,
		},
		Properties: t.properties(period, row),
	})
	return err
}
