package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/repository"
)

const therapistColumns = `
	id, user_id, name, email, license_number, specializations, availability,
	max_students, current_students, emergency_hours, gender, crisis_specialist,
	rating, status, created_at, updated_at, deleted_at
`

func (r *therapistRepository) Create(ctx context.Context, t *model.Therapist) error {
	query := `
		INSERT INTO therapists (
			id, user_id, name, email, license_number, specializations,
			availability, max_students, current_students, emergency_hours,
			gender, crisis_specialist, rating, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()
	t.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.UserID,
		t.Name,
		t.Email,
		t.LicenseNumber,
		t.Specializations,
		t.Availability,
		t.MaxStudents,
		t.CurrentStudents,
		t.EmergencyHours,
		t.Gender,
		t.CrisisSpecialist,
		t.Rating,
		t.Status,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create therapist: %w", err)
	}
	return nil
}

func (r *therapistRepository) Get(ctx context.Context, id uuid.UUID) (*model.Therapist, error) {
	query := `SELECT ` + therapistColumns + ` FROM therapists WHERE id = $1 AND deleted_at IS NULL`

	var t model.Therapist
	err := r.db.GetContext(ctx, &t, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get therapist: %w", err)
	}
	return &t, nil
}

func (r *therapistRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Therapist, error) {
	query := `SELECT ` + therapistColumns + ` FROM therapists WHERE user_id = $1 AND deleted_at IS NULL`

	var t model.Therapist
	err := r.db.GetContext(ctx, &t, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get therapist by user: %w", err)
	}
	return &t, nil
}

func (r *therapistRepository) Update(ctx context.Context, t *model.Therapist) error {
	query := `
		UPDATE therapists
		SET name = $1, email = $2, license_number = $3, specializations = $4,
			availability = $5, max_students = $6, emergency_hours = $7,
			gender = $8, crisis_specialist = $9, rating = $10, status = $11,
			updated_at = $12
		WHERE id = $13 AND deleted_at IS NULL
	`
	t.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		t.Name,
		t.Email,
		t.LicenseNumber,
		t.Specializations,
		t.Availability,
		t.MaxStudents,
		t.EmergencyHours,
		t.Gender,
		t.CrisisSpecialist,
		t.Rating,
		t.Status,
		t.UpdatedAt,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update therapist: %w", err)
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

func (r *therapistRepository) List(ctx context.Context, filter *model.TherapistFilter) ([]*model.Therapist, error) {
	query := `SELECT ` + therapistColumns + ` FROM therapists WHERE deleted_at IS NULL`
	args := []interface{}{}
	argCount := 1

	if filter != nil {
		if filter.Status != "" {
			query += fmt.Sprintf(" AND status = $%d", argCount)
			args = append(args, filter.Status)
			argCount++
		}
		if filter.Specialization != "" {
			query += fmt.Sprintf(" AND $%d = ANY(specializations)", argCount)
			args = append(args, filter.Specialization)
			argCount++
		}
		if filter.Gender != "" {
			query += fmt.Sprintf(" AND gender = $%d", argCount)
			args = append(args, filter.Gender)
			argCount++
		}
		if filter.HasCapacity {
			query += " AND current_students < max_students"
		}
		if len(filter.ExcludeIDs) > 0 {
			query += fmt.Sprintf(" AND id != ALL($%d)", argCount)
			ids := make([]string, len(filter.ExcludeIDs))
			for i, id := range filter.ExcludeIDs {
				ids[i] = id.String()
			}
			args = append(args, pq.StringArray(ids))
			argCount++
		}
	}

	query += " ORDER BY current_students ASC, rating DESC, id ASC"

	var therapists []*model.Therapist
	err := r.db.SelectContext(ctx, &therapists, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list therapists: %w", err)
	}
	return therapists, nil
}

func (r *therapistRepository) IncrementCaseload(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE therapists
		SET current_students = current_students + 1, updated_at = NOW()
		WHERE id = $1 AND current_students < max_students AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to increment caseload: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *therapistRepository) DecrementCaseload(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE therapists
		SET current_students = current_students - 1, updated_at = NOW()
		WHERE id = $1 AND current_students > 0 AND deleted_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to decrement caseload: %w", err)
	}
	return nil
}
