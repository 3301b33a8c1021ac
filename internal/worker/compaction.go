// Package worker holds periodic background jobs run beside the server.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// RevisionPruner trims the message revision history.
// Implemented by store.SQLiteStore.
type RevisionPruner interface {
	// PruneRevisions keeps the newest keep revisions of every message and
	// returns how many were deleted.
	PruneRevisions(ctx context.Context, keep int) (int64, error)
}

// Compactor periodically prunes old message revisions.
type Compactor struct {
	store    RevisionPruner
	interval time.Duration
	keep     int
}

// NewCompactor creates a revision compactor.
func NewCompactor(store RevisionPruner, interval time.Duration, keep int) *Compactor {
	return &Compactor{store: store, interval: interval, keep: keep}
}

// Run starts the compaction loop. Blocks until ctx is cancelled.
//
// The first pass waits one interval so startup does not contend with the
// initial render for the database.
func (c *Compactor) Run(ctx context.Context) error {
	slog.Info("revision compactor started",
		"component", "worker",
		"worker", "revision-compaction",
		"interval", c.interval.String(),
		"keep", c.keep,
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("revision compactor stopped",
				"component", "worker",
				"worker", "revision-compaction",
				"reason", "context_cancelled",
			)
			return nil
		case <-ticker.C:
			c.CompactOnce(ctx)
		}
	}
}

// CompactOnce runs one pruning pass. Failures are logged and retried on the
// next tick.
func (c *Compactor) CompactOnce(ctx context.Context) int64 {
	deleted, err := c.store.PruneRevisions(ctx, c.keep)
	if err != nil {
		slog.Error("revision compaction failed",
			"component", "worker",
			"worker", "revision-compaction",
			"error", err,
		)
		return 0
	}
	if deleted > 0 {
		slog.Info("revision compaction completed",
			"component", "worker",
			"worker", "revision-compaction",
			"deleted", deleted,
		)
	}
	return deleted
}
