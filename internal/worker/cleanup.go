package worker

import (
	"context"
	"time"

	"github.com/campuswell/wellbeing-api/internal/repository"
	"github.com/campuswell/wellbeing-api/pkg/logger"
)

// AlternativesCleaner deletes expired alternative-therapist offers.
// Implemented by the scheduling service.
type AlternativesCleaner interface {
	CleanupExpiredAlternatives(ctx context.Context) (int64, error)
}

// CleanupWorker removes expired alternative offers and processed outbox
// events past the retention window.
type CleanupWorker struct {
	alternatives  AlternativesCleaner
	outbox        repository.OutboxRepository
	interval      time.Duration
	retentionDays int
	logger        *logger.Logger
}

func NewCleanupWorker(
	alternatives AlternativesCleaner,
	outbox repository.OutboxRepository,
	interval time.Duration,
	retentionDays int,
	logger *logger.Logger,
) *CleanupWorker {
	return &CleanupWorker{
		alternatives:  alternatives,
		outbox:        outbox,
		interval:      interval,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

func (w *CleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

func (w *CleanupWorker) run(ctx context.Context) {
	if n, err := w.alternatives.CleanupExpiredAlternatives(ctx); err != nil {
		w.logger.Error(err, "failed to delete expired alternative offers")
	} else if n > 0 {
		w.logger.Info("deleted expired alternative offers", "count", n)
	}

	cutoff := time.Now().AddDate(0, 0, -w.retentionDays)
	if n, err := w.outbox.DeleteProcessedBefore(ctx, cutoff); err != nil {
		w.logger.Error(err, "failed to prune processed outbox events")
	} else if n > 0 {
		w.logger.Info("pruned processed outbox events", "count", n)
	}
}
