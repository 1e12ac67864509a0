package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusExpired   AppointmentStatus = "expired"
)

const (
	DefaultSessionMinutes   = 60
	EmergencySessionMinutes = 30

	// FallbackIDPrefix marks meeting ids synthesized locally when the
	// videoconference provider is unreachable.
	FallbackIDPrefix = "fallback-"
)

// MeetingInfo is owned exclusively by its appointment and recreated on
// reschedule. Stored as JSONB.
type MeetingInfo struct {
	MeetLink      string `json:"meet_link"`
	HostLink      string `json:"host_link"`
	ProviderID    string `json:"provider_id"`
	Password      string `json:"password"`
	DialIn        string `json:"dial_in,omitempty"`
	Platform      string `json:"platform"`
	IsFallback    bool   `json:"is_fallback"`
	CreatedMethod string `json:"created_method"`
}

func (m MeetingInfo) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *MeetingInfo) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	case nil:
		*m = MeetingInfo{}
		return nil
	default:
		return fmt.Errorf("unsupported type for MeetingInfo: %T", src)
	}
}

// IsFallbackID reports whether a provider meeting id was synthesized locally.
func IsFallbackID(providerID string) bool {
	return providerID == "" || strings.HasPrefix(providerID, FallbackIDPrefix)
}

type Appointment struct {
	Base
	StudentID       uuid.UUID         `db:"student_id" json:"student_id"`
	TherapistID     uuid.UUID         `db:"therapist_id" json:"therapist_id"`
	AssignmentID    *uuid.UUID        `db:"assignment_id" json:"assignment_id,omitempty"`
	StartTime       time.Time         `db:"start_time" json:"start_time"`
	DurationMinutes int               `db:"duration_minutes" json:"duration_minutes"`
	Type            string            `db:"type" json:"type"`
	Status          AppointmentStatus `db:"status" json:"status"`
	CrisisLevel     CrisisLevel       `db:"crisis_level" json:"crisis_level"`
	AutoScheduled   bool              `db:"auto_scheduled" json:"auto_scheduled"`
	Notes           string            `db:"notes" json:"notes,omitempty"`
	MeetingInfo     MeetingInfo       `db:"meeting_info" json:"meeting_info"`
	JoinCount       int               `db:"join_count" json:"join_count"`
	HostJoinCount   int               `db:"host_join_count" json:"host_join_count"`
	LastJoined      *time.Time        `db:"last_joined" json:"last_joined,omitempty"`
	CancelledBy     *string           `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelReason    *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CancelledAt     *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
	ZoomCancelled   bool              `db:"zoom_cancelled" json:"zoom_cancelled"`
	AutoCompleted   bool              `db:"auto_completed" json:"auto_completed"`
	CompletedAt     *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

// EndTime is the scheduled end instant.
func (a *Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Active reports whether the appointment still occupies the student's
// single-active slot: a future pending or confirmed session.
func (a *Appointment) Active(now time.Time) bool {
	if a.DeletedAt != nil {
		return false
	}
	if a.Status != AppointmentStatusPending && a.Status != AppointmentStatusConfirmed {
		return false
	}
	return a.StartTime.After(now)
}

type BookSlotRequest struct {
	TherapistID string    `json:"therapist_id" validate:"required,uuid"`
	StartTime   time.Time `json:"start_time" validate:"required"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type RescheduleAppointmentRequest struct {
	NewStartTime time.Time `json:"new_start_time" validate:"required"`
}

// JoinStatus classifies a join attempt relative to the appointment window.
type JoinStatus string

const (
	JoinStatusPending   JoinStatus = "pending"
	JoinStatusWaiting   JoinStatus = "waiting"
	JoinStatusAvailable JoinStatus = "available"
	JoinStatusExpired   JoinStatus = "expired"
	JoinStatusCancelled JoinStatus = "cancelled"
	JoinStatusCompleted JoinStatus = "completed"
)

// JoinDecision is the rich result of a join-window check.
type JoinDecision struct {
	AppointmentID    uuid.UUID  `json:"appointment_id"`
	CanJoin          bool       `json:"can_join"`
	Status           JoinStatus `json:"status"`
	Message          string     `json:"message"`
	Urgency          string     `json:"urgency"`
	MeetingAvailable bool       `json:"meeting_available"`
	MeetLink         string     `json:"meet_link,omitempty"`
	MinutesToWait    int        `json:"minutes_to_wait,omitempty"`
}
