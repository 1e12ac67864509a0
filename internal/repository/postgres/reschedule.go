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

func (r *rescheduleRepository) Create(ctx context.Context, req *model.RescheduleRequest) error {
	query := `
		INSERT INTO reschedule_requests (
			id, appointment_id, student_id, therapist_id, requested_slots,
			suggested_times, status, student_message, therapist_response,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.CreatedAt = time.Now()
	req.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		req.ID,
		req.AppointmentID,
		req.StudentID,
		req.TherapistID,
		req.RequestedSlots,
		req.SuggestedTimes,
		req.Status,
		req.StudentMessage,
		req.TherapistResponse,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reschedule request: %w", err)
	}
	return nil
}

func (r *rescheduleRepository) Get(ctx context.Context, id uuid.UUID) (*model.RescheduleRequest, error) {
	query := `
		SELECT id, appointment_id, student_id, therapist_id, requested_slots,
			   suggested_times, status, student_message, therapist_response,
			   created_at, updated_at
		FROM reschedule_requests
		WHERE id = $1
	`
	var req model.RescheduleRequest
	err := r.db.GetContext(ctx, &req, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reschedule request: %w", err)
	}
	return &req, nil
}

func (r *rescheduleRepository) Update(ctx context.Context, req *model.RescheduleRequest) error {
	query := `
		UPDATE reschedule_requests
		SET suggested_times = $1, status = $2, therapist_response = $3, updated_at = $4
		WHERE id = $5
	`
	req.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		req.SuggestedTimes,
		req.Status,
		req.TherapistResponse,
		req.UpdatedAt,
		req.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update reschedule request: %w", err)
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

func (r *rescheduleRepository) ListPendingForTherapist(ctx context.Context, therapistID uuid.UUID) ([]*model.RescheduleRequest, error) {
	query := `
		SELECT id, appointment_id, student_id, therapist_id, requested_slots,
			   suggested_times, status, student_message, therapist_response,
			   created_at, updated_at
		FROM reschedule_requests
		WHERE therapist_id = $1 AND status = $2
		ORDER BY created_at ASC
	`
	var requests []*model.RescheduleRequest
	err := r.db.SelectContext(ctx, &requests, query, therapistID, model.RescheduleStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reschedule requests: %w", err)
	}
	return requests, nil
}
