package publish

import (
	"context"
	"fmt"
	"log/slog"
)

// Action is the outcome of a period-scoped upsert.
type Action string

const (
	Create  Action = "created"
	Skip    Action = "skipped"
	Replace Action = "replaced"
)

// Decide applies the idempotency rule: insert when nothing exists for the
// period, skip when something exists unless forced, replace when forced.
func Decide(exists, force bool) Action {
	switch {
	case !exists:
		return Create
	case force:
		return Replace
	default:
		return Skip
	}
}

// Table is a remote collection whose records are keyed by a period label.
type Table[R any] interface {
	// Name is used in logs and results.
	Name() string
	// Find returns the IDs of the live records stored for period.
	Find(ctx context.Context, period string) ([]string, error)
	// Archive soft-deletes a record.
	Archive(ctx context.Context, id string) error
	// Insert stores one record for period.
	Insert(ctx context.Context, period string, row R) error
}

// Result reports what an Upsert did.
type Result struct {
	Table    string `json:"database"`
	Action   Action `json:"action"`
	Inserted int    `json:"count"`
	Failed   int    `json:"failed"`
}

// Upsert writes rows for period following Decide. Existing records are all
// archived before the new rows go in, so a replace never leaves duplicates.
// A row that fails to insert is logged and counted, not fatal.
func Upsert[R any](ctx context.Context, logger *slog.Logger, table Table[R], period string, rows []R, force bool) (Result, error) {
	res := Result{Table: table.Name()}

	existing, err := table.Find(ctx, period)
	if err != nil {
		return res, fmt.Errorf("failed to query %s for %s: %w", table.Name(), period, err)
	}

	res.Action = Decide(len(existing) > 0, force)
	if res.Action == Skip {
		logger.Info("Records already exist for period, skipping.", "table", table.Name(), "period", period, "existing", len(existing))
		return res, nil
	}

	if res.Action == Replace {
		for _, id := range existing {
			if err := table.Archive(ctx, id); err != nil {
				return res, fmt.Errorf("failed to archive %s record %s: %w", table.Name(), id, err)
			}
		}
		logger.Info("Archived existing records.", "table", table.Name(), "period", period, "count", len(existing))
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := table.Insert(ctx, period, row); err != nil {
			res.Failed++
			logger.Warn("Failed to insert row.", "table", table.Name(), "period", period, "error", err)
			continue
		}
		res.Inserted++
	}

	logger.Info("Upsert finished.", "table", table.Name(), "period", period, "action", res.Action, "inserted", res.Inserted, "failed", res.Failed)
	return res, nil
}
