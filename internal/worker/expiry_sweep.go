package worker

import (
	"context"
	"time"

	"github.com/campuswell/wellbeing-api/pkg/logger"
)

// AppointmentExpirer marks overdue confirmed appointments completed.
// Implemented by the scheduling service.
type AppointmentExpirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// ExpirySweepWorker periodically auto-completes confirmed appointments
// that ended long ago without an explicit completion. The sweep is
// idempotent, so overlapping runs across instances are harmless.
type ExpirySweepWorker struct {
	scheduler AppointmentExpirer
	interval  time.Duration
	logger    *logger.Logger
}

func NewExpirySweepWorker(scheduler AppointmentExpirer, interval time.Duration, logger *logger.Logger) *ExpirySweepWorker {
	return &ExpirySweepWorker{
		scheduler: scheduler,
		interval:  interval,
		logger:    logger,
	}
}

func (w *ExpirySweepWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.scheduler.ExpireOverdue(ctx); err != nil {
				w.logger.Error(err, "expiry sweep failed")
			}
		}
	}
}
