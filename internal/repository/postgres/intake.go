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

func (r *intakeRepository) Create(ctx context.Context, intake *model.IntakeAssessment) error {
	if intake.ID == uuid.Nil {
		intake.ID = uuid.New()
	}
	intake.Active = true
	intake.CreatedAt = time.Now()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		deactivate := `
			UPDATE intake_assessments
			SET active = FALSE
			WHERE student_id = $1 AND active = TRUE
		`
		if _, err := tx.ExecContext(ctx, deactivate, intake.StudentID); err != nil {
			return fmt.Errorf("failed to supersede prior assessment: %w", err)
		}

		insert := `
			INSERT INTO intake_assessments (
				id, student_id, primary_concern, description, severity,
				therapist_gender, crisis_indicators, emergency_contact_name,
				emergency_contact_phone, crisis_level, active, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`
		if _, err := tx.ExecContext(ctx, insert,
			intake.ID,
			intake.StudentID,
			intake.PrimaryConcern,
			intake.Description,
			intake.Severity,
			intake.TherapistGender,
			intake.CrisisIndicators,
			intake.EmergencyContactName,
			intake.EmergencyContactPhone,
			intake.CrisisLevel,
			intake.Active,
			intake.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to create intake assessment: %w", err)
		}
		return nil
	})
}

func (r *intakeRepository) GetActiveByStudent(ctx context.Context, studentID uuid.UUID) (*model.IntakeAssessment, error) {
	query := `
		SELECT id, student_id, primary_concern, description, severity,
			   therapist_gender, crisis_indicators, emergency_contact_name,
			   emergency_contact_phone, crisis_level, active, created_at
		FROM intake_assessments
		WHERE student_id = $1 AND active = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`
	var intake model.IntakeAssessment
	err := r.db.GetContext(ctx, &intake, query, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active intake assessment: %w", err)
	}
	return &intake, nil
}
