package model

import (
	"time"

	"github.com/google/uuid"
)

type AssignmentStatus string

const (
	AssignmentActive   AssignmentStatus = "active"
	AssignmentInactive AssignmentStatus = "inactive"
)

// Assignment pairs one student with one therapist. At most one active
// assignment per student at any time.
type Assignment struct {
	ID           uuid.UUID        `db:"id" json:"id"`
	StudentID    uuid.UUID        `db:"student_id" json:"student_id"`
	TherapistID  uuid.UUID        `db:"therapist_id" json:"therapist_id"`
	Status       AssignmentStatus `db:"status" json:"status"`
	AutoAssigned bool             `db:"auto_assigned" json:"auto_assigned"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}
