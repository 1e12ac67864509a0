package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationPriority string

const (
	PriorityNormal   NotificationPriority = "normal"
	PriorityUrgent   NotificationPriority = "urgent"
	PriorityCritical NotificationPriority = "critical"
)

// Notification types emitted by engine operations.
const (
	NotificationNewMessage             = "new_message"
	NotificationAppointmentScheduled   = "appointment_scheduled"
	NotificationAppointmentConfirmed   = "appointment_confirmed"
	NotificationAppointmentCancelled   = "appointment_cancelled"
	NotificationAppointmentRescheduled = "appointment_rescheduled"
	NotificationEmergencySession       = "emergency_session_scheduled"
	NotificationCrisisAlertUrgent      = "crisis_alert_urgent"
	NotificationTherapistAssigned      = "therapist_assigned"
	NotificationRescheduleRequested    = "reschedule_requested"
	NotificationRescheduleResponded    = "reschedule_responded"
	NotificationRescheduleRejected     = "reschedule_rejected"
	NotificationAlternativesOffered    = "alternative_therapists_available"
)

// Notification is a durable per-recipient inbox row. Delivery is
// at-least-once; recipients acknowledge by marking read.
type Notification struct {
	ID        uuid.UUID            `db:"id" json:"id"`
	UserID    uuid.UUID            `db:"user_id" json:"user_id"`
	Type      string               `db:"type" json:"type"`
	Message   string               `db:"message" json:"message"`
	RelatedID *uuid.UUID           `db:"related_id" json:"related_id,omitempty"`
	Priority  NotificationPriority `db:"priority" json:"priority"`
	Read      bool                 `db:"read" json:"read"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}

// NotificationEvent is the payload published to the broker when an inbox
// row is written, for real-time delivery to connected clients.
type NotificationEvent struct {
	NotificationID uuid.UUID            `json:"notification_id"`
	UserID         uuid.UUID            `json:"user_id"`
	Type           string               `json:"type"`
	Message        string               `json:"message"`
	Priority       NotificationPriority `json:"priority"`
	CreatedAt      time.Time            `json:"created_at"`
}

// EmailEnvelope is the rendered message handed to the outbound mail boundary.
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}
