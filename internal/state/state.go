package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"timeanalytics/internal/models"
)

// RunState is the watermark written after every successful pipeline run.
// LastRunUTC is used as the updated-since filter of the next incremental run.
type RunState struct {
	RunID            string    `json:"run_id"`
	LastRunUTC       time.Time `json:"last_run_utc"`
	DaysBack         int       `json:"days_back"`
	EventsFetched    int       `json:"events_fetched"`
	EventsProcessed  int       `json:"events_processed"`
	ReportsGenerated []string  `json:"reports_generated"`
}

// NewRunID returns a fresh identifier for one pipeline run.
func NewRunID() string {
	return uuid.New().String()
}

// Load loads the run state from the JSON file. A missing file yields a
// zero RunState and no error.
func Load(path string) (RunState, error) {
	var st RunState
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return st, nil
		}
		return st, fmt.Errorf("failed to read run state: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("failed to parse run state %s: %w", path, err)
	}
	return st, nil
}

// Save saves the run state to the JSON file, creating its directory.
func Save(path string, st RunState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Watermark returns the updated-since instant for an incremental run, or
// nil when no previous run was recorded.
func (s RunState) Watermark() *time.Time {
	if s.LastRunUTC.IsZero() {
		return nil
	}
	t := s.LastRunUTC
	return &t
}

// ArchiveRaw writes the fetched raw events to dir for traceability and
// returns the file path.
func ArchiveRaw(dir string, raw []models.RawEvent, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create raw data directory: %w", err)
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal raw events: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("raw_events_%s.json", now.UTC().Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write raw events: %w", err)
	}
	return path, nil
}
