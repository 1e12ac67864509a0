package model

import (
	"time"

	"github.com/google/uuid"
)

type CrisisLevel string

const (
	CrisisNone     CrisisLevel = "none"
	CrisisLow      CrisisLevel = "low"
	CrisisMedium   CrisisLevel = "medium"
	CrisisHigh     CrisisLevel = "high"
	CrisisCritical CrisisLevel = "critical"
)

var crisisRank = map[CrisisLevel]int{
	CrisisNone:     0,
	CrisisLow:      1,
	CrisisMedium:   2,
	CrisisHigh:     3,
	CrisisCritical: 4,
}

// Rank returns the ordinal severity of the level; unknown levels rank lowest.
func (l CrisisLevel) Rank() int {
	return crisisRank[l]
}

// AtLeast reports whether l is at least as severe as other.
func (l CrisisLevel) AtLeast(other CrisisLevel) bool {
	return l.Rank() >= other.Rank()
}

type CrisisAlertStatus string

const (
	CrisisAlertAutoEscalated         CrisisAlertStatus = "auto_escalated"
	CrisisAlertAcknowledged          CrisisAlertStatus = "acknowledged"
	CrisisAlertEscalatedToSupervisor CrisisAlertStatus = "escalated_to_supervisor"
	CrisisAlertResolved              CrisisAlertStatus = "resolved"
)

// CrisisAlert is the one-open-per-student escalation record. Subsequent
// detections move CrisisLevel upward, never downward.
type CrisisAlert struct {
	ID           uuid.UUID         `db:"id" json:"id"`
	StudentID    uuid.UUID         `db:"student_id" json:"student_id"`
	TherapistID  *uuid.UUID        `db:"therapist_id" json:"therapist_id,omitempty"`
	MessageID    *uuid.UUID        `db:"message_id" json:"message_id,omitempty"`
	CrisisLevel  CrisisLevel       `db:"crisis_level" json:"crisis_level"`
	Status       CrisisAlertStatus `db:"status" json:"status"`
	AutoDetected bool              `db:"auto_detected" json:"auto_detected"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}
