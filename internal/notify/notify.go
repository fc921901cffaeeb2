package notify

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/beeep"

	"timeanalytics/internal/analytics"
)

// AppName is shown by the desktop notification service.
const AppName = "Time Analytics"

// Notifier shows a desktop notification at the end of a run.
type Notifier struct {
	logger *slog.Logger
	send   func(title, message string) error
}

// New creates a notifier backed by the OS notification service.
func New(logger *slog.Logger) *Notifier {
	beeep.AppName = AppName
	return &Notifier{
		logger: logger,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

// RunFinished reports the headline numbers of a run. Notification failures
// are logged and never fail the run.
func (n *Notifier) RunFinished(label string, r analytics.Result) {
	title := fmt.Sprintf("Time report %s", label)
	if err := n.send(title, Message(r)); err != nil {
		n.logger.Warn("Failed to show notification.", "error", err)
	}
}

// Message summarizes a result in one or two short lines.
func Message(r analytics.Result) string {
	msg := fmt.Sprintf("%.1fh across %d events, %.1fh/day", r.TotalHours, r.TotalEvents, r.AvgDailyHours)
	if len(r.CategoryRatios) > 0 {
		top := r.CategoryRatios[0]
		msg += fmt.Sprintf("\nTop: %s (%.0f%%)", top.Category, top.Ratio*100)
	}
	if r.WeeklyTrendDirection != "" && r.WeeklyTrendDirection != analytics.TrendStable {
		msg += fmt.Sprintf(", trend %s", r.WeeklyTrendDirection)
	}
	return msg
}
