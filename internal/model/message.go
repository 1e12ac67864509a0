package model

import (
	"crypto/md5"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type ModerationAction string

const (
	ModerationAllow    ModerationAction = "allow"
	ModerationFilter   ModerationAction = "filter"
	ModerationBlock    ModerationAction = "block"
	ModerationEscalate ModerationAction = "escalate"
)

// Message is one entry in an assignment's chat stream. Body holds the
// delivered (possibly filtered) text; OriginalBody is kept only when
// filtering changed it. Blocked messages are never persisted.
type Message struct {
	ID           uuid.UUID        `db:"id" json:"id"`
	AssignmentID uuid.UUID        `db:"assignment_id" json:"assignment_id"`
	StudentID    uuid.UUID        `db:"student_id" json:"student_id"`
	TherapistID  uuid.UUID        `db:"therapist_id" json:"therapist_id"`
	Sender       Role             `db:"sender" json:"sender"`
	Body         string           `db:"body" json:"body"`
	OriginalBody *string          `db:"original_body" json:"-"`
	Flags        pq.StringArray   `db:"flags" json:"flags"`
	Action       ModerationAction `db:"action" json:"action"`
	MessageHash  string           `db:"message_hash" json:"-"`
	Read         bool             `db:"read" json:"read"`
	Timestamp    time.Time        `db:"timestamp" json:"timestamp"`
}

// HashMessage fingerprints message text for duplicate detection.
func HashMessage(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ModerationLog records every non-clean moderation decision for monitoring.
type ModerationLog struct {
	ID              uuid.UUID        `db:"id" json:"id"`
	SenderID        uuid.UUID        `db:"sender_id" json:"sender_id"`
	MessageHash     string           `db:"message_hash" json:"message_hash"`
	Action          ModerationAction `db:"action" json:"action"`
	Flags           pq.StringArray   `db:"flags" json:"flags"`
	Confidence      float64          `db:"confidence" json:"confidence"`
	EscalationLevel CrisisLevel      `db:"escalation_level" json:"escalation_level"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
}

// ModerationReport aggregates moderation outcomes over a window.
type ModerationReport struct {
	PeriodHours      int       `json:"period_hours"`
	TotalMessages    int64     `json:"total_messages"`
	BlockedMessages  int64     `json:"blocked_messages"`
	FilteredMessages int64     `json:"filtered_messages"`
	CrisisAlerts     int64     `json:"crisis_alerts"`
	GeneratedAt      time.Time `json:"generated_at"`
}

type SendMessageRequest struct {
	Body string `json:"body" validate:"required"`
}

// ChatExchange records a chatbot turn for cost accounting. Response
// generation itself happens outside this service.
type ChatExchange struct {
	ID            uuid.UUID   `db:"id" json:"id"`
	UserID        uuid.UUID   `db:"user_id" json:"user_id"`
	Prompt        string      `db:"prompt" json:"prompt"`
	ResponseText  string      `db:"response_text" json:"response_text"`
	TokensUsed    int         `db:"tokens_used" json:"tokens_used"`
	EstimatedCost float64     `db:"estimated_cost" json:"estimated_cost"`
	CrisisLevel   CrisisLevel `db:"crisis_level" json:"crisis_level"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}
