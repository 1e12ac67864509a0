package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campuswell/wellbeing-api/internal/model"
)

func (r *messageRepository) Create(ctx context.Context, msg *model.Message) error {
	query := `
		INSERT INTO messages (
			id, assignment_id, student_id, therapist_id, sender, body,
			original_body, flags, action, message_hash, read, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		msg.ID,
		msg.AssignmentID,
		msg.StudentID,
		msg.TherapistID,
		msg.Sender,
		msg.Body,
		msg.OriginalBody,
		msg.Flags,
		msg.Action,
		msg.MessageHash,
		msg.Read,
		msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *messageRepository) ListForAssignment(ctx context.Context, assignmentID uuid.UUID, limit int) ([]*model.Message, error) {
	query := `
		SELECT id, assignment_id, student_id, therapist_id, sender, body,
			   original_body, flags, action, message_hash, read, timestamp
		FROM messages
		WHERE assignment_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`
	var messages []*model.Message
	err := r.db.SelectContext(ctx, &messages, query, assignmentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, assignmentID, readerID uuid.UUID) error {
	// A reader only acknowledges messages they did not send.
	query := `
		UPDATE messages
		SET read = TRUE
		WHERE assignment_id = $1
		AND read = FALSE
		AND NOT (student_id = $2 AND sender = 'student')
		AND NOT (therapist_id = $2 AND sender = 'therapist')
	`
	_, err := r.db.ExecContext(ctx, query, assignmentID, readerID)
	if err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	return nil
}

func (r *messageRepository) CountBySenderSince(ctx context.Context, senderID uuid.UUID, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE (
			(sender = 'student' AND student_id = $1)
			OR (sender = 'therapist' AND therapist_id = $1)
		)
		AND timestamp >= $2
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, senderID, since); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (r *messageRepository) CountIdenticalSince(ctx context.Context, senderID uuid.UUID, hash string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE (
			(sender = 'student' AND student_id = $1)
			OR (sender = 'therapist' AND therapist_id = $1)
		)
		AND message_hash = $2
		AND timestamp >= $3
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, senderID, hash, since); err != nil {
		return 0, fmt.Errorf("failed to count identical messages: %w", err)
	}
	return count, nil
}
