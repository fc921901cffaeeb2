package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTimezone     = "Europe/Berlin"
	DefaultLookbackDays = 30
	DefaultSchedule     = "0 7 * * MON"
	DefaultDriveFolder  = "Time Analytics Reports"
)

// GoogleConfig configures the Google Calendar source and Drive uploads.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// Account selects token-<account>.json. Empty means the first token found.
	Account string `yaml:"account"`
	// CalendarIDs restricts fetching to these calendars. Empty means every
	// calendar on the account.
	CalendarIDs []string `yaml:"calendar_ids"`
	DriveFolder string   `yaml:"drive_folder"`
}

// CalDAVConfig configures an optional CalDAV source (iCloud by default).
type CalDAVConfig struct {
	Endpoint string `yaml:"endpoint"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Calendars restricts fetching to calendars with these names.
	Calendars []string `yaml:"calendars"`
}

// Enabled reports whether enough is configured to talk to the server.
func (c CalDAVConfig) Enabled() bool {
	return c.Username != "" && c.Password != ""
}

// ICSFeed is one subscribed ICS URL.
type ICSFeed struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// NotionConfig configures the Notion publisher.
type NotionConfig struct {
	Token        string `yaml:"token"`
	ParentPageID string `yaml:"parent_page_id"`
	SummaryDBID  string `yaml:"summary_db_id"`
	EventLogDBID string `yaml:"event_log_db_id"`
}

// Enabled reports whether a Notion token is configured.
func (n NotionConfig) Enabled() bool {
	return n.Token != ""
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone events are converted into.
	Timezone     string `yaml:"timezone"`
	LookbackDays int    `yaml:"lookback_days"`
	LogLevel     string `yaml:"log_level"`

	ReportDir  string `yaml:"report_dir"`
	RawDataDir string `yaml:"raw_data_dir"`
	StateFile  string `yaml:"state_file"`

	// Schedule is the cron spec used by the schedule command.
	Schedule string `yaml:"schedule"`

	Google GoogleConfig `yaml:"google"`
	CalDAV CalDAVConfig `yaml:"caldav"`
	ICS    []ICSFeed    `yaml:"ics"`
	Notion NotionConfig `yaml:"notion"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing values with defaults.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = DefaultLookbackDays
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ReportDir == "" {
		c.ReportDir = "reports"
	}
	if c.RawDataDir == "" {
		c.RawDataDir = "data"
	}
	if c.StateFile == "" {
		c.StateFile = filepath.Join(c.RawDataDir, "pipeline_state.json")
	}
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.Google.DriveFolder == "" {
		c.Google.DriveFolder = DefaultDriveFolder
	}
	if c.CalDAV.Endpoint == "" {
		c.CalDAV.Endpoint = "https://caldav.icloud.com/"
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			c.ICS[i].ID = fmt.Sprintf("ics-%d", i+1)
		}
	}
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}
	return loc, nil
}

// Load reads the YAML file at path, overlays environment variables and
// normalizes the result. A missing file is not an error: the defaults plus
// environment are returned.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnv overlays values from the environment; set variables win over
// the file.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Timezone, "PRIMARY_TIMEZONE")
	set(&c.LogLevel, "LOG_LEVEL")
	set(&c.ReportDir, "REPORT_DIR")
	set(&c.Schedule, "SCHEDULE")
	set(&c.Google.ClientID, "GOOGLE_CLIENT_ID")
	set(&c.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	set(&c.Google.Account, "GOOGLE_ACCOUNT")
	set(&c.CalDAV.Username, "ICLOUD_USERNAME")
	set(&c.CalDAV.Password, "ICLOUD_APP_SPECIFIC_PASSWORD")
	set(&c.Notion.Token, "NOTION_TOKEN")
	set(&c.Notion.ParentPageID, "NOTION_PARENT_PAGE_ID")
	set(&c.Notion.SummaryDBID, "NOTION_SUMMARY_DB_ID")
	set(&c.Notion.EventLogDBID, "NOTION_EVENT_LOG_DB_ID")

	if v := getenv("GOOGLE_CALENDAR_IDS"); v != "" {
		c.Google.CalendarIDs = splitList(v)
	}
	if v := getenv("ICLOUD_CALENDAR_NAME"); v != "" {
		c.CalDAV.Calendars = splitList(v)
	}
	if v := getenv("LOOKBACK_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LookbackDays = n
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
