package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/repository"
)

func (r *assignmentRepository) CreateActive(ctx context.Context, a *model.Assignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Status = model.AssignmentActive
	a.CreatedAt = time.Now()
	a.UpdatedAt = time.Now()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		// Serialize per student: deactivate-then-insert against a snapshot
		// would let two concurrent calls each miss the other's row and
		// leave two active assignments.
		if err := lockStudent(ctx, tx, a.StudentID); err != nil {
			return err
		}

		deactivate := `
			UPDATE assignments
			SET status = $1, updated_at = NOW()
			WHERE student_id = $2 AND status = $3
		`
		if _, err := tx.ExecContext(ctx, deactivate,
			model.AssignmentInactive, a.StudentID, model.AssignmentActive,
		); err != nil {
			return fmt.Errorf("failed to deactivate prior assignment: %w", err)
		}

		insert := `
			INSERT INTO assignments (
				id, student_id, therapist_id, status, auto_assigned,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := tx.ExecContext(ctx, insert,
			a.ID,
			a.StudentID,
			a.TherapistID,
			a.Status,
			a.AutoAssigned,
			a.CreatedAt,
			a.UpdatedAt,
		); err != nil {
			// Schema backstop: UNIQUE (student_id) WHERE status = 'active'.
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return repository.ErrConflict
			}
			return fmt.Errorf("failed to create assignment: %w", err)
		}
		return nil
	})
}

func (r *assignmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Assignment, error) {
	query := `
		SELECT id, student_id, therapist_id, status, auto_assigned, created_at, updated_at
		FROM assignments
		WHERE id = $1
	`
	var a model.Assignment
	err := r.db.GetContext(ctx, &a, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &a, nil
}

func (r *assignmentRepository) GetActiveByStudent(ctx context.Context, studentID uuid.UUID) (*model.Assignment, error) {
	query := `
		SELECT id, student_id, therapist_id, status, auto_assigned, created_at, updated_at
		FROM assignments
		WHERE student_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var a model.Assignment
	err := r.db.GetContext(ctx, &a, query, studentID, model.AssignmentActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active assignment: %w", err)
	}
	return &a, nil
}

func (r *assignmentRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE assignments
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	result, err := r.db.ExecContext(ctx, query, model.AssignmentInactive, id, model.AssignmentActive)
	if err != nil {
		return fmt.Errorf("failed to deactivate assignment: %w", err)
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
