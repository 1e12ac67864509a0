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

const appointmentColumns = `
	id, student_id, therapist_id, assignment_id, start_time, duration_minutes,
	type, status, crisis_level, auto_scheduled, notes, meeting_info,
	join_count, host_join_count, last_joined, cancelled_by, cancel_reason,
	cancelled_at, zoom_cancelled, auto_completed, completed_at,
	created_at, updated_at, deleted_at
`

func (r *appointmentRepository) CreateExclusive(ctx context.Context, apt *model.Appointment, emergencyOverride bool) error {
	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	apt.CreatedAt = time.Now()
	apt.UpdatedAt = time.Now()

	// The guard and insert run behind a per-student advisory lock so two
	// concurrent bookings cannot both pass the check.
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockStudent(ctx, tx, apt.StudentID); err != nil {
			return err
		}

		query := `
			INSERT INTO appointments (
				id, student_id, therapist_id, assignment_id, start_time,
				duration_minutes, type, status, crisis_level, auto_scheduled,
				notes, meeting_info, created_at, updated_at
			)
			SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
			WHERE $15 OR NOT EXISTS (
				SELECT 1 FROM appointments
				WHERE student_id = $2
				AND status IN ('pending', 'confirmed')
				AND start_time > NOW()
				AND deleted_at IS NULL
			)
		`
		result, err := tx.ExecContext(ctx, query,
			apt.ID,
			apt.StudentID,
			apt.TherapistID,
			apt.AssignmentID,
			apt.StartTime,
			apt.DurationMinutes,
			apt.Type,
			apt.Status,
			apt.CrisisLevel,
			apt.AutoScheduled,
			apt.Notes,
			apt.MeetingInfo,
			apt.CreatedAt,
			apt.UpdatedAt,
			emergencyOverride,
		)
		if err != nil {
			return fmt.Errorf("failed to create appointment: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return repository.ErrConflict
		}
		return nil
	})
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 AND deleted_at IS NULL`

	var apt model.Appointment
	err := r.db.GetContext(ctx, &apt, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &apt, nil
}

func (r *appointmentRepository) Update(ctx context.Context, apt *model.Appointment) error {
	query := `
		UPDATE appointments
		SET start_time = $1, duration_minutes = $2, status = $3, notes = $4,
			meeting_info = $5, cancelled_by = $6, cancel_reason = $7,
			cancelled_at = $8, zoom_cancelled = $9, auto_completed = $10,
			completed_at = $11, updated_at = $12
		WHERE id = $13 AND deleted_at IS NULL
	`
	apt.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		apt.StartTime,
		apt.DurationMinutes,
		apt.Status,
		apt.Notes,
		apt.MeetingInfo,
		apt.CancelledBy,
		apt.CancelReason,
		apt.CancelledAt,
		apt.ZoomCancelled,
		apt.AutoCompleted,
		apt.CompletedAt,
		apt.UpdatedAt,
		apt.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
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

func (r *appointmentRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE appointments
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
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

func (r *appointmentRepository) GetActiveByStudent(ctx context.Context, studentID uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE student_id = $1
		AND status IN ('pending', 'confirmed')
		AND start_time > NOW()
		AND deleted_at IS NULL
		ORDER BY start_time ASC
		LIMIT 1
	`
	var apt model.Appointment
	err := r.db.GetContext(ctx, &apt, query, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active appointment: %w", err)
	}
	return &apt, nil
}

func (r *appointmentRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE student_id = $1 AND deleted_at IS NULL
		ORDER BY start_time DESC
	`
	var appointments []*model.Appointment
	err := r.db.SelectContext(ctx, &appointments, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ListBookedForTherapist(ctx context.Context, therapistID uuid.UUID, from, to time.Time) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE therapist_id = $1
		AND status IN ('pending', 'confirmed')
		AND start_time >= $2
		AND start_time < $3
		AND deleted_at IS NULL
		ORDER BY start_time ASC
	`
	var appointments []*model.Appointment
	err := r.db.SelectContext(ctx, &appointments, query, therapistID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list booked appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) CountActiveForAssignment(ctx context.Context, assignmentID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM appointments
		WHERE assignment_id = $1
		AND status IN ('pending', 'confirmed')
		AND start_time > NOW()
		AND deleted_at IS NULL
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, assignmentID); err != nil {
		return 0, fmt.Errorf("failed to count active appointments: %w", err)
	}
	return count, nil
}

func (r *appointmentRepository) ExpireConfirmedBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	query := `
		UPDATE appointments
		SET status = 'completed', auto_completed = TRUE,
			completed_at = NOW(), updated_at = NOW()
		WHERE status = 'confirmed'
		AND start_time + duration_minutes * INTERVAL '1 minute' < $1
		AND deleted_at IS NULL
		RETURNING id
	`
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to expire appointments: %w", err)
	}
	return ids, nil
}

func (r *appointmentRepository) RecordJoin(ctx context.Context, id uuid.UUID, host bool) error {
	query := `
		UPDATE appointments
		SET join_count = join_count + 1, last_joined = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	if host {
		query = `
			UPDATE appointments
			SET host_join_count = host_join_count + 1, last_joined = NOW(), updated_at = NOW()
			WHERE id = $1 AND deleted_at IS NULL
		`
	}
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to record join: %w", err)
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
