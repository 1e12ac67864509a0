package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/repository"
)

func (r *crisisAlertRepository) Escalate(ctx context.Context, alert *model.CrisisAlert) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			SELECT id, student_id, therapist_id, message_id, crisis_level,
				   status, auto_detected, created_at, updated_at
			FROM crisis_alerts
			WHERE student_id = $1 AND status != $2
			ORDER BY created_at DESC
			LIMIT 1
			FOR UPDATE
		`
		var open model.CrisisAlert
		err := tx.GetContext(ctx, &open, query, alert.StudentID, model.CrisisAlertResolved)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up open alert: %w", err)
		}

		if errors.Is(err, sql.ErrNoRows) {
			alert.ID = uuid.New()
			alert.CreatedAt = time.Now()
			alert.UpdatedAt = time.Now()
			insert := `
				INSERT INTO crisis_alerts (
					id, student_id, therapist_id, message_id, crisis_level,
					status, auto_detected, created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`
			if _, err := tx.ExecContext(ctx, insert,
				alert.ID,
				alert.StudentID,
				alert.TherapistID,
				alert.MessageID,
				alert.CrisisLevel,
				alert.Status,
				alert.AutoDetected,
				alert.CreatedAt,
				alert.UpdatedAt,
			); err != nil {
				return fmt.Errorf("failed to create crisis alert: %w", err)
			}
			return nil
		}

		// Severity only moves upward on repeat detections.
		if !alert.CrisisLevel.AtLeast(open.CrisisLevel) {
			alert.ID = open.ID
			alert.CrisisLevel = open.CrisisLevel
			return nil
		}

		update := `
			UPDATE crisis_alerts
			SET crisis_level = $1, message_id = COALESCE($2, message_id), updated_at = NOW()
			WHERE id = $3
		`
		if _, err := tx.ExecContext(ctx, update, alert.CrisisLevel, alert.MessageID, open.ID); err != nil {
			return fmt.Errorf("failed to escalate crisis alert: %w", err)
		}
		alert.ID = open.ID
		return nil
	})
}

func (r *crisisAlertRepository) GetOpenByStudent(ctx context.Context, studentID uuid.UUID) (*model.CrisisAlert, error) {
	query := `
		SELECT id, student_id, therapist_id, message_id, crisis_level,
			   status, auto_detected, created_at, updated_at
		FROM crisis_alerts
		WHERE student_id = $1 AND status != $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var alert model.CrisisAlert
	err := r.db.GetContext(ctx, &alert, query, studentID, model.CrisisAlertResolved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open crisis alert: %w", err)
	}
	return &alert, nil
}

func (r *crisisAlertRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.CrisisAlertStatus) error {
	query := `
		UPDATE crisis_alerts
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update crisis alert status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *crisisAlertRepository) CountAutoDetectedSince(ctx context.Context, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM crisis_alerts
		WHERE auto_detected = TRUE AND created_at >= $1
	`
	var count int64
	if err := r.db.GetContext(ctx, &count, query, since); err != nil {
		return 0, fmt.Errorf("failed to count crisis alerts: %w", err)
	}
	return count, nil
}
