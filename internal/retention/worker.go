// Package retention runs the background sweep that expires old
// conversation history.
package retention

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is how often the sweep runs when none is configured.
const DefaultInterval = time.Hour

// Pruner deletes history lines older than maxAge and reports how many went.
type Pruner interface {
	PruneHistory(ctx context.Context, maxAge time.Duration) (int64, error)
}

// SweepCallback is called after every sweep with the number of lines removed.
type SweepCallback func(deleted int64)

// Worker periodically prunes conversation history.
type Worker struct {
	pruner   Pruner
	maxAge   time.Duration
	interval time.Duration
	onSweep  SweepCallback
	logger   *slog.Logger
}

// NewWorker creates a Worker. onSweep may be nil.
func NewWorker(pruner Pruner, maxAge, interval time.Duration, onSweep SweepCallback, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		pruner:   pruner,
		maxAge:   maxAge,
		interval: interval,
		onSweep:  onSweep,
		logger:   logger.With("component", "retention"),
	}
}

// Start runs the sweep in a background goroutine until ctx is cancelled.
// A non-positive maxAge disables the worker.
func (w *Worker) Start(ctx context.Context) {
	if w.maxAge <= 0 {
		w.logger.Info("history retention disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		w.logger.Info("retention worker started", "interval", w.interval, "max_age", w.maxAge)

		for {
			select {
			case <-ticker.C:
				w.Sweep(ctx)
			case <-ctx.Done():
				w.logger.Info("retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep prunes once and returns the number of lines removed.
func (w *Worker) Sweep(ctx context.Context) int64 {
	deleted, err := w.pruner.PruneHistory(ctx, w.maxAge)
	if err != nil {
		if ctx.Err() != nil {
			w.logger.Debug("retention sweep cancelled", "error", err)
			return 0
		}
		w.logger.Error("retention sweep failed", "error", err)
		return 0
	}
	if deleted > 0 {
		w.logger.Info("expired conversation history", "count", deleted)
	}
	if w.onSweep != nil {
		w.onSweep(deleted)
	}
	return deleted
}
