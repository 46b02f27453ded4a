package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/token-ledger/internal/metrics"
	"github.com/ErlanBelekov/token-ledger/internal/repository"
	"github.com/robfig/cron/v3"
)

const defaultBatchSize = 500

// Janitor deletes transaction records older than the retention window on a
// cron schedule. Keys older than the window can be replayed, so retention must
// outlast any client retry.
type Janitor struct {
	store     repository.MaintenanceStore
	logger    *slog.Logger
	schedule  cron.Schedule
	retention time.Duration
	batchSize int
	now       func() time.Time
}

// New parses spec with cron.ParseStandard, so "@every 10m" also works.
func New(store repository.MaintenanceStore, logger *slog.Logger, spec string, retention time.Duration) (*Janitor, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse janitor schedule %q: %w", spec, err)
	}
	return &Janitor{
		store:     store,
		logger:    logger.With("component", "janitor"),
		schedule:  sched,
		retention: retention,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}, nil
}

func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info("janitor started", "retention", j.retention)

	for {
		next := j.schedule.Next(j.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info("janitor shut down")
			return
		case <-timer.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.Error("janitor prune", "error", err)
			}
		}
	}
}

// RunOnce prunes in batches until a batch comes back short.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		metrics.JanitorCycleDuration.Observe(time.Since(start).Seconds())
	}()

	cutoff := j.now().Add(-j.retention)
	total := 0
	for {
		n, err := j.store.PruneTransactions(ctx, cutoff, j.batchSize)
		total += n
		metrics.JanitorPrunedTotal.Add(float64(n))
		if err != nil {
			return total, fmt.Errorf("prune transactions: %w", err)
		}
		if n < j.batchSize || ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		j.logger.Info("janitor pruned transactions", "count", total, "cutoff", cutoff)
	}
	return total, nil
}
