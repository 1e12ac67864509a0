package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RescheduleStatus string

const (
	RescheduleStatusPending   RescheduleStatus = "pending"
	RescheduleStatusResponded RescheduleStatus = "responded"
	RescheduleStatusRejected  RescheduleStatus = "rejected"
	RescheduleStatusFulfilled RescheduleStatus = "fulfilled"
)

// TimeList is a JSONB-encoded ordered list of instants.
type TimeList []time.Time

func (t TimeList) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t)
}

func (t *TimeList) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	case nil:
		*t = nil
		return nil
	default:
		return fmt.Errorf("unsupported type for TimeList: %T", src)
	}
}

// RescheduleRequest is a student-filed request to move an appointment.
// The therapist responds with suggested times or rejects; the student's
// selection of a suggested time fulfils the request.
type RescheduleRequest struct {
	ID                uuid.UUID        `db:"id" json:"id"`
	AppointmentID     uuid.UUID        `db:"appointment_id" json:"appointment_id"`
	StudentID         uuid.UUID        `db:"student_id" json:"student_id"`
	TherapistID       uuid.UUID        `db:"therapist_id" json:"therapist_id"`
	RequestedSlots    TimeList         `db:"requested_slots" json:"requested_slots"`
	SuggestedTimes    TimeList         `db:"suggested_times" json:"suggested_times"`
	Status            RescheduleStatus `db:"status" json:"status"`
	StudentMessage    string           `db:"student_message" json:"student_message"`
	TherapistResponse string           `db:"therapist_response" json:"therapist_response"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// AlternativeCandidate pairs a fallback therapist with their next open slot.
type AlternativeCandidate struct {
	TherapistID     uuid.UUID `json:"therapist_id"`
	TherapistName   string    `json:"therapist_name"`
	LicenseNumber   string    `json:"license_number"`
	Specializations []string  `json:"specializations"`
	NextSlot        time.Time `json:"next_slot"`
}

type AlternativeList []AlternativeCandidate

func (l AlternativeList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *AlternativeList) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = nil
		return nil
	default:
		return fmt.Errorf("unsupported type for AlternativeList: %T", src)
	}
}

// AlternativeOptions is the 24-hour expiring document offered to a student
// when their therapist becomes unavailable.
type AlternativeOptions struct {
	ID                    uuid.UUID       `db:"id" json:"id"`
	StudentID             uuid.UUID       `db:"student_id" json:"student_id"`
	OriginalAppointmentID uuid.UUID       `db:"original_appointment_id" json:"original_appointment_id"`
	OriginalTherapistID   uuid.UUID       `db:"original_therapist_id" json:"original_therapist_id"`
	Alternatives          AlternativeList `db:"alternatives" json:"alternatives"`
	Reason                string          `db:"reason" json:"reason"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	ExpiresAt             time.Time       `db:"expires_at" json:"expires_at"`
}

type FileRescheduleRequest struct {
	AppointmentID  string      `json:"appointment_id" validate:"required,uuid"`
	RequestedSlots []time.Time `json:"requested_slots" validate:"required,min=1,max=5"`
	Message        string      `json:"message" validate:"max=500"`
}

type RespondRescheduleRequest struct {
	SuggestedTimes []time.Time `json:"suggested_times" validate:"required,min=1,max=5"`
	Response       string      `json:"response" validate:"max=500"`
}

type SelectRescheduleSlotRequest struct {
	StartTime time.Time `json:"start_time" validate:"required"`
}
