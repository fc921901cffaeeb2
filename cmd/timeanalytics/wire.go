package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"timeanalytics/internal/caldav"
	"timeanalytics/internal/config"
	"timeanalytics/internal/google"
	"timeanalytics/internal/ics"
	"timeanalytics/internal/notify"
	"timeanalytics/internal/notion"
	"timeanalytics/internal/pipeline"
	"timeanalytics/internal/report"
)

// buildPipeline creates the configured sources and publishers.
func buildPipeline(ctx context.Context, logger *slog.Logger, cfg *config.Config, opts pipeline.Options, withNotify bool) (*pipeline.Pipeline, error) {
	var (
		sources   []pipeline.EventSource
		uploader  pipeline.Uploader
		publisher pipeline.Publisher
		notifier  pipeline.Notifier
	)

	googleClient, err := googleHTTPClient(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}
	if googleClient != nil {
		calendarClient, err := google.NewCalendarClient(ctx, logger, googleClient, cfg.Google.CalendarIDs)
		if err != nil {
			return nil, err
		}
		sources = append(sources, calendarClient)
	}

	if cfg.CalDAV.Enabled() {
		loc, err := cfg.Location()
		if err != nil {
			return nil, err
		}
		caldavClient, err := caldav.NewClient(logger, cfg.CalDAV.Endpoint, cfg.CalDAV.Username, cfg.CalDAV.Password, cfg.CalDAV.Calendars, loc)
		if err != nil {
			return nil, fmt.Errorf("failed to create caldav client: %w", err)
		}
		sources = append(sources, caldavClient)
	}

	for _, feed := range cfg.ICS {
		sources = append(sources, ics.NewFeed(logger, nil, feed.ID, feed.Name, feed.URL))
	}

	if len(sources) == 0 {
		return nil, errors.New("no event sources configured: run 'auth' for Google, or configure CalDAV or ICS feeds")
	}
	logger.Info("Initialized event sources.", "count", len(sources))

	if !opts.SkipUpload {
		if googleClient == nil {
			return nil, errors.New("drive upload needs a Google token: run 'auth' or pass --skip-upload")
		}
		driveUploader, err := google.NewDriveUploader(ctx, logger, googleClient, cfg.Google.DriveFolder)
		if err != nil {
			return nil, err
		}
		uploader = driveUploader
	}

	if cfg.Notion.Enabled() && !opts.SkipNotion {
		publisher = notion.NewPublisher(logger, cfg.Notion.Token, cfg.Notion.ParentPageID, cfg.Notion.SummaryDBID, cfg.Notion.EventLogDBID)
	} else if !opts.SkipNotion {
		logger.Info("Notion upload disabled (NOTION_TOKEN not set).")
	}

	if withNotify {
		notifier = notify.New(logger)
	}

	return pipeline.New(logger, cfg, sources, report.NewFileRenderer(logger, cfg.ReportDir), uploader, publisher, notifier)
}

// googleHTTPClient returns an authorized client, or nil when no Google
// account has been authenticated and none is configured.
func googleHTTPClient(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*http.Client, error) {
	if cfg.Google.Account == "" {
		accounts, err := google.GetTokenAccounts()
		if err != nil {
			return nil, fmt.Errorf("could not look for google tokens: %w", err)
		}
		if len(accounts) == 0 {
			logger.Info("No Google token found, Google Calendar disabled.")
			return nil, nil
		}
		if len(accounts) > 1 {
			logger.Info("Several Google tokens found, using the first one.", "account", accounts[0])
		}
	}

	client, err := google.NewHTTPClient(ctx, cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.Account)
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}
	return client, nil
}
