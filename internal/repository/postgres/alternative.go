package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/repository"
)

func (r *alternativeOptionsRepository) Create(ctx context.Context, opts *model.AlternativeOptions) error {
	query := `
		INSERT INTO alternative_options (
			id, student_id, original_appointment_id, original_therapist_id,
			alternatives, reason, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if opts.ID == uuid.Nil {
		opts.ID = uuid.New()
	}
	opts.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		opts.ID,
		opts.StudentID,
		opts.OriginalAppointmentID,
		opts.OriginalTherapistID,
		opts.Alternatives,
		opts.Reason,
		opts.CreatedAt,
		opts.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alternative options: %w", err)
	}
	return nil
}

func (r *alternativeOptionsRepository) GetCurrentByStudent(ctx context.Context, studentID uuid.UUID) (*model.AlternativeOptions, error) {
	query := `
		SELECT id, student_id, original_appointment_id, original_therapist_id,
			   alternatives, reason, created_at, expires_at
		FROM alternative_options
		WHERE student_id = $1 AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1
	`
	var opts model.AlternativeOptions
	err := r.db.GetContext(ctx, &opts, query, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alternative options: %w", err)
	}
	return &opts, nil
}

func (r *alternativeOptionsRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM alternative_options
		WHERE expires_at <= $1
	`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired alternative options: %w", err)
	}
	return result.RowsAffected()
}
