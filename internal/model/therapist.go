package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// TimeWindow is a half-open [Start, End) interval within a day, "15:04" format.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WeeklyAvailability maps lowercase weekday names ("monday"..."sunday") to
// ordered, non-overlapping time windows. Stored as JSONB.
type WeeklyAvailability map[string][]TimeWindow

func (a WeeklyAvailability) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

func (a *WeeklyAvailability) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		*a = WeeklyAvailability{}
		return nil
	default:
		return fmt.Errorf("unsupported type for WeeklyAvailability: %T", src)
	}
}

type Therapist struct {
	Base
	UserID           uuid.UUID          `db:"user_id" json:"user_id"`
	Name             string             `db:"name" json:"name"`
	Email            string             `db:"email" json:"email"`
	LicenseNumber    string             `db:"license_number" json:"license_number"`
	Specializations  pq.StringArray     `db:"specializations" json:"specializations"`
	Availability     WeeklyAvailability `db:"availability" json:"availability"`
	MaxStudents      int                `db:"max_students" json:"max_students"`
	CurrentStudents  int                `db:"current_students" json:"current_students"`
	EmergencyHours   bool               `db:"emergency_hours" json:"emergency_hours"`
	Gender           string             `db:"gender" json:"gender"`
	CrisisSpecialist bool               `db:"crisis_specialist" json:"crisis_specialist"`
	Rating           int                `db:"rating" json:"rating"`
	Status           UserStatus         `db:"status" json:"status"`
}

// HasCapacity reports whether the therapist can take one more student.
func (t *Therapist) HasCapacity() bool {
	return t.CurrentStudents < t.MaxStudents
}

// TherapistFilter narrows candidate queries during triage.
type TherapistFilter struct {
	Status         UserStatus
	Specialization string
	Gender         string
	HasCapacity    bool
	ExcludeIDs     []uuid.UUID
}
