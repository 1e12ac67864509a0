package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type GenderPreference string

const (
	GenderMale         GenderPreference = "male"
	GenderFemale       GenderPreference = "female"
	GenderNoPreference GenderPreference = "no_preference"
)

// IntakeAssessment is the self-report form that drives triage. At most one
// active assessment per student; submitting a new one supersedes the old.
type IntakeAssessment struct {
	ID                    uuid.UUID        `db:"id" json:"id"`
	StudentID             uuid.UUID        `db:"student_id" json:"student_id"`
	PrimaryConcern        string           `db:"primary_concern" json:"primary_concern"`
	Description           string           `db:"description" json:"description"`
	Severity              int              `db:"severity" json:"severity"`
	TherapistGender       GenderPreference `db:"therapist_gender" json:"therapist_gender"`
	CrisisIndicators      pq.StringArray   `db:"crisis_indicators" json:"crisis_indicators"`
	EmergencyContactName  string           `db:"emergency_contact_name" json:"emergency_contact_name"`
	EmergencyContactPhone string           `db:"emergency_contact_phone" json:"emergency_contact_phone"`
	CrisisLevel           CrisisLevel      `db:"crisis_level" json:"crisis_level"`
	Active                bool             `db:"active" json:"active"`
	CreatedAt             time.Time        `db:"created_at" json:"created_at"`
}

type SubmitIntakeRequest struct {
	PrimaryConcern        string   `json:"primary_concern" validate:"required"`
	Description           string   `json:"description" validate:"required,max=5000"`
	Severity              int      `json:"severity" validate:"required,min=1,max=10"`
	TherapistGender       string   `json:"therapist_gender" validate:"omitempty,oneof=male female no_preference"`
	CrisisIndicators      []string `json:"crisis_indicators"`
	EmergencyContactName  string   `json:"emergency_contact_name" validate:"required"`
	EmergencyContactPhone string   `json:"emergency_contact_phone" validate:"required"`
}
