package main

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// cronLogger routes cron's own messages through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		l.logger.Warn("Previous scheduled run still in progress, skipping this one.")
		return
	}
	l.logger.Debug("Scheduler: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("Scheduler: "+msg, append(keysAndValues, "error", err)...)
}

// jobWrappers keep a scheduled run from overlapping the previous one and log
// a panic instead of killing the process.
func jobWrappers(logger *slog.Logger) []cron.JobWrapper {
	l := cronLogger{logger: logger}
	return []cron.JobWrapper{cron.Recover(l), cron.SkipIfStillRunning(l)}
}

func newScheduler(logger *slog.Logger, loc *time.Location) *cron.Cron {
	return cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{logger: logger}),
		cron.WithChain(jobWrappers(logger)...),
	)
}
