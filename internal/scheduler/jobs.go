package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Autosaver persists a workspace when it has unsaved changes.
type Autosaver interface {
	Autosave(ctx context.Context) (bool, error)
}

// Compactor is the store maintenance surface.
type Compactor interface {
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
	Vacuum(ctx context.Context) error
}

// AutosaveJob saves w on schedule when it is dirty.
func AutosaveJob(spec string, w Autosaver, logger *slog.Logger) Job {
	return Job{
		Name: "autosave",
		Cron: spec,
		Run: func(ctx context.Context) error {
			saved, err := w.Autosave(ctx)
			if err != nil {
				return fmt.Errorf("autosave: %w", err)
			}
			if saved && logger != nil {
				logger.Debug("workspace autosaved")
			}
			return nil
		},
	}
}

// VacuumJob prunes activity older than retention and compacts the store.
// A non-positive retention keeps every event.
func VacuumJob(spec string, c Compactor, retention time.Duration, logger *slog.Logger) Job {
	return Job{
		Name: "vacuum",
		Cron: spec,
		Run: func(ctx context.Context) error {
			if retention > 0 {
				n, err := c.PruneEvents(ctx, time.Now().UTC().Add(-retention))
				if err != nil {
					return fmt.Errorf("prune events: %w", err)
				}
				if n > 0 && logger != nil {
					logger.Info("pruned activity events", slog.Int64("count", n))
				}
			}
			if err := c.Vacuum(ctx); err != nil {
				return fmt.Errorf("vacuum: %w", err)
			}
			return nil
		},
	}
}
