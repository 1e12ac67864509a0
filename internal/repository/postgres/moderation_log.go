package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campuswell/wellbeing-api/internal/model"
)

func (r *moderationLogRepository) Create(ctx context.Context, entry *model.ModerationLog) error {
	query := `
		INSERT INTO moderation_logs (
			id, sender_id, message_hash, action, flags, confidence,
			escalation_level, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.SenderID,
		entry.MessageHash,
		entry.Action,
		entry.Flags,
		entry.Confidence,
		entry.EscalationLevel,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create moderation log: %w", err)
	}
	return nil
}

func (r *moderationLogRepository) Report(ctx context.Context, since time.Time) (*model.ModerationReport, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE action = 'block') AS blocked,
			COUNT(*) FILTER (WHERE action = 'filter') AS filtered
		FROM moderation_logs
		WHERE created_at >= $1
	`
	var row struct {
		Total    int64 `db:"total"`
		Blocked  int64 `db:"blocked"`
		Filtered int64 `db:"filtered"`
	}
	if err := r.db.GetContext(ctx, &row, query, since); err != nil {
		return nil, fmt.Errorf("failed to build moderation report: %w", err)
	}

	report := &model.ModerationReport{
		PeriodHours:      int(time.Since(since).Hours()),
		TotalMessages:    row.Total,
		BlockedMessages:  row.Blocked,
		FilteredMessages: row.Filtered,
		GeneratedAt:      time.Now(),
	}
	return report, nil
}
