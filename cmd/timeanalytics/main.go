package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"timeanalytics/internal/config"
	"timeanalytics/internal/google"
	"timeanalytics/internal/pipeline"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "timeanalytics",
		Usage: "Turn calendar events into weekly time-usage reports.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "timeanalytics.yaml", Usage: "Path to the YAML config file."},
		},
		Commands: []*cli.Command{
			authCommand(),
			runCommand(),
			scheduleCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, setupLogger(cfg.LogLevel), nil
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account to get an API token.",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger.Info("Starting Google authentication flow.")

			oauthConfig, err := google.GetOAuthConfigForAuthFlow(cfg.Google.ClientID, cfg.Google.ClientSecret)
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, oauthConfig, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			fmt.Print("Enter a name for this account (e.g., 'personal', 'work'): ")
			accountName, _ := reader.ReadString('\n')
			accountName = strings.TrimSpace(accountName)
			if accountName == "" {
				accountName = "default"
			}
			tokenFile := google.TokenFile(accountName)

			if err := google.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the analytics pipeline once.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Usage: "Number of days to look back (default from config)."},
			&cli.StringFlag{Name: "start", Usage: "Start date (YYYY-MM-DD). Use with --end."},
			&cli.StringFlag{Name: "end", Usage: "End date (YYYY-MM-DD). Use with --start."},
			&cli.BoolFlag{Name: "last-week", Usage: "Report on last Monday to Sunday, with month-to-date data."},
			&cli.BoolFlag{Name: "skip-upload", Usage: "Skip uploading reports to Google Drive."},
			&cli.BoolFlag{Name: "skip-notion", Usage: "Skip pushing data to Notion."},
			&cli.BoolFlag{Name: "incremental", Usage: "Only fetch events updated since the last run."},
			&cli.BoolFlag{Name: "force", Usage: "Regenerate and republish even if the period was already reported."},
			&cli.BoolFlag{Name: "notify", Usage: "Show a desktop notification when the run finishes."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}

			opts := pipeline.Options{
				Days:        c.Int("days"),
				Start:       c.String("start"),
				End:         c.String("end"),
				LastWeek:    c.Bool("last-week"),
				SkipUpload:  c.Bool("skip-upload"),
				SkipNotion:  c.Bool("skip-notion"),
				Incremental: c.Bool("incremental"),
				Force:       c.Bool("force"),
			}

			p, err := buildPipeline(c.Context, logger, cfg, opts, c.Bool("notify"))
			if err != nil {
				return fmt.Errorf("failed to set up pipeline: %w", err)
			}

			summary, err := p.Run(c.Context, opts)
			if err != nil {
				return fmt.Errorf("pipeline run failed: %w", err)
			}
			for _, u := range summary.Uploaded {
				fmt.Printf("%s: %s\n", u.Name, u.Link)
			}
			return nil
		},
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Run the last-week report on a cron schedule until interrupted.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "cron", Usage: "Cron spec overriding the configured schedule."},
			&cli.BoolFlag{Name: "skip-upload", Usage: "Skip uploading reports to Google Drive."},
			&cli.BoolFlag{Name: "skip-notion", Usage: "Skip pushing data to Notion."},
			&cli.BoolFlag{Name: "notify", Usage: "Show a desktop notification after each run."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			spec := cfg.Schedule
			if c.IsSet("cron") {
				spec = c.String("cron")
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := pipeline.Options{
				LastWeek:   true,
				SkipUpload: c.Bool("skip-upload"),
				SkipNotion: c.Bool("skip-notion"),
			}
			p, err := buildPipeline(ctx, logger, cfg, opts, c.Bool("notify"))
			if err != nil {
				return fmt.Errorf("failed to set up pipeline: %w", err)
			}

			scheduler := newScheduler(logger, loc)
			if _, err := scheduler.AddFunc(spec, func() {
				if _, err := p.Run(ctx, opts); err != nil {
					logger.Error("Scheduled run failed", "error", err)
				}
			}); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", spec, err)
			}

			logger.Info("Starting scheduler.", "schedule", spec, "timezone", loc.String())
			scheduler.Start()
			<-ctx.Done()

			logger.Info("Signal received, waiting for running jobs.")
			<-scheduler.Stop().Done()
			return nil
		},
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
