package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/repository"
	apperrors "github.com/campuswell/wellbeing-api/pkg/errors"
	"github.com/campuswell/wellbeing-api/pkg/logger"
	"github.com/campuswell/wellbeing-api/pkg/metrics"
)

// EmergencyScheduler books an immediate session after a critical
// detection. Implemented by the scheduling service.
type EmergencyScheduler interface {
	ScheduleEmergencySession(ctx context.Context, studentID, therapistID uuid.UUID) (*model.Appointment, error)
}

// Notifier writes durable notifications. Implemented by the
// notification service.
type Notifier interface {
	Notify(ctx context.Context, n *model.Notification) error
}

// SendResult reports the outcome of a moderated send.
type SendResult struct {
	Delivered    bool              `json:"delivered"`
	Message      *model.Message    `json:"message,omitempty"`
	Flags        []string          `json:"flags,omitempty"`
	Warnings     map[string]string `json:"warnings,omitempty"`
	AutoResponse string            `json:"auto_response,omitempty"`
}

type Service struct {
	moderator   *Moderator
	messages    repository.MessageRepository
	assignments repository.AssignmentRepository
	therapists  repository.TherapistRepository
	alerts      repository.CrisisAlertRepository
	modLog      repository.ModerationLogRepository
	notifier    Notifier
	emergency   EmergencyScheduler
	logger      *logger.Logger
	metrics     *metrics.Metrics
}

func NewService(
	moderator *Moderator,
	messages repository.MessageRepository,
	assignments repository.AssignmentRepository,
	therapists repository.TherapistRepository,
	alerts repository.CrisisAlertRepository,
	modLog repository.ModerationLogRepository,
	notifier Notifier,
	emergency EmergencyScheduler,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		moderator:   moderator,
		messages:    messages,
		assignments: assignments,
		therapists:  therapists,
		alerts:      alerts,
		modLog:      modLog,
		notifier:    notifier,
		emergency:   emergency,
		logger:      logger,
		metrics:     metrics,
	}
}

// Send moderates and delivers a chat message within the sender's active
// assignment. Blocked messages are never persisted.
func (s *Service) Send(ctx context.Context, sender model.Role, senderID, studentID uuid.UUID, body string) (*SendResult, error) {
	assignment, err := s.assignments.GetActiveByStudent(ctx, studentID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("active assignment", err)
		}
		return nil, fmt.Errorf("failed to resolve assignment: %w", err)
	}

	switch sender {
	case model.RoleStudent:
		if senderID != assignment.StudentID {
			return nil, apperrors.Forbidden("not a participant in this assignment")
		}
	case model.RoleTherapist:
		if senderID != assignment.TherapistID {
			return nil, apperrors.Forbidden("not a participant in this assignment")
		}
	default:
		return nil, apperrors.BadRequest("unsupported sender role", nil)
	}

	decision := s.moderator.Moderate(ctx, body, sender, senderID)
	s.metrics.ModerationDecisions.WithLabelValues(string(decision.Action)).Inc()

	if decision.Action != model.ModerationAllow || len(decision.Flags) > 0 {
		s.logDecision(ctx, senderID, body, decision)
	}

	if decision.Action == model.ModerationBlock {
		return &SendResult{
			Delivered:    false,
			Flags:        decision.Flags,
			Warnings:     buildWarnings(decision.Flags),
			AutoResponse: decision.AutoResponse,
		}, nil
	}

	msg := &model.Message{
		AssignmentID: assignment.ID,
		StudentID:    assignment.StudentID,
		TherapistID:  assignment.TherapistID,
		Sender:       sender,
		Body:         decision.FilteredBody,
		Flags:        decision.Flags,
		Action:       decision.Action,
		MessageHash:  model.HashMessage(body),
		Timestamp:    time.Now(),
	}
	if decision.FilteredBody != body {
		original := body
		msg.OriginalBody = &original
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	if sender == model.RoleStudent && decision.EscalationLevel.AtLeast(model.CrisisHigh) {
		s.escalateCrisis(ctx, assignment, msg, decision.EscalationLevel)
	}

	s.notifyRecipient(ctx, assignment, sender)

	return &SendResult{
		Delivered:    true,
		Message:      msg,
		Flags:        decision.Flags,
		Warnings:     buildWarnings(decision.Flags),
		AutoResponse: decision.AutoResponse,
	}, nil
}

func (s *Service) escalateCrisis(ctx context.Context, assignment *model.Assignment, msg *model.Message, level model.CrisisLevel) {
	s.metrics.CrisisDetections.WithLabelValues(string(level)).Inc()

	alert := &model.CrisisAlert{
		StudentID:    assignment.StudentID,
		TherapistID:  &assignment.TherapistID,
		MessageID:    &msg.ID,
		CrisisLevel:  level,
		Status:       model.CrisisAlertAutoEscalated,
		AutoDetected: true,
	}
	if err := s.alerts.Escalate(ctx, alert); err != nil {
		s.logger.Error(err, "failed to escalate crisis alert",
			"student_id", assignment.StudentID.String())
		return
	}

	if err := s.notifier.Notify(ctx, &model.Notification{
		UserID:    s.therapistUserID(ctx, assignment.TherapistID),
		Type:      model.NotificationCrisisAlertUrgent,
		Message:   "URGENT: Crisis indicators detected in student message. Immediate attention required.",
		RelatedID: &alert.ID,
		Priority:  model.PriorityCritical,
	}); err != nil {
		s.logger.Error(err, "failed to notify therapist of crisis alert",
			"therapist_id", assignment.TherapistID.String())
	}

	if level == model.CrisisCritical && s.emergency != nil {
		if _, err := s.emergency.ScheduleEmergencySession(ctx, assignment.StudentID, assignment.TherapistID); err != nil {
			s.logger.Error(err, "failed to auto-schedule emergency session",
				"student_id", assignment.StudentID.String())
		}
	}
}

func (s *Service) notifyRecipient(ctx context.Context, assignment *model.Assignment, sender model.Role) {
	recipient := s.therapistUserID(ctx, assignment.TherapistID)
	if sender == model.RoleTherapist {
		recipient = assignment.StudentID
	}

	if err := s.notifier.Notify(ctx, &model.Notification{
		UserID:    recipient,
		Type:      model.NotificationNewMessage,
		Message:   "You have a new message.",
		RelatedID: &assignment.ID,
		Priority:  model.PriorityNormal,
	}); err != nil {
		s.logger.Error(err, "failed to notify message recipient",
			"user_id", recipient.String())
	}
}

func (s *Service) logDecision(ctx context.Context, senderID uuid.UUID, body string, decision Decision) {
	entry := &model.ModerationLog{
		SenderID:        senderID,
		MessageHash:     model.HashMessage(body),
		Action:          decision.Action,
		Flags:           decision.Flags,
		Confidence:      decision.Confidence,
		EscalationLevel: decision.EscalationLevel,
	}
	if err := s.modLog.Create(ctx, entry); err != nil {
		s.logger.Error(err, "failed to write moderation log",
			"sender_id", senderID.String())
	}
}

// History returns the most recent messages in the caller's assignment
// and marks the returned messages as read for the caller.
func (s *Service) History(ctx context.Context, callerID uuid.UUID, role model.Role, studentID uuid.UUID, limit int) ([]*model.Message, error) {
	assignment, err := s.assignments.GetActiveByStudent(ctx, studentID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("active assignment", err)
		}
		return nil, fmt.Errorf("failed to resolve assignment: %w", err)
	}
	if callerID != assignment.StudentID && callerID != assignment.TherapistID {
		return nil, apperrors.Forbidden("not a participant in this assignment")
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	messages, err := s.messages.ListForAssignment(ctx, assignment.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	if err := s.messages.MarkRead(ctx, assignment.ID, callerID); err != nil {
		s.logger.Error(err, "failed to mark messages read",
			"assignment_id", assignment.ID.String())
	}

	return messages, nil
}

// Report aggregates moderation outcomes over the trailing window.
func (s *Service) Report(ctx context.Context, period time.Duration) (*model.ModerationReport, error) {
	since := time.Now().Add(-period)

	report, err := s.modLog.Report(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to build moderation report: %w", err)
	}

	alerts, err := s.alerts.CountAutoDetectedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count crisis alerts: %w", err)
	}
	report.CrisisAlerts = alerts
	report.PeriodHours = int(period.Hours())

	return report, nil
}

func buildWarnings(flags []string) map[string]string {
	warnings := make(map[string]string)
	for _, flag := range flags {
		switch {
		case strings.HasPrefix(flag, "profanity_"):
			warnings["profanity"] = "Please keep language respectful in therapy conversations."
		case strings.HasPrefix(flag, "boundary_violation"):
			warnings["boundaries"] = "Please keep conversations within professional therapeutic boundaries."
		case flag == "potential_spam":
			warnings["spam"] = "Your message looks repetitive. Please avoid sending duplicate content."
		case flag == "outside_business_hours":
			warnings["hours"] = "Messages sent outside business hours may receive delayed responses."
		}
	}
	if len(warnings) == 0 {
		return nil
	}
	return warnings
}

// therapistUserID resolves the therapist's user account for inbox
// delivery, falling back to the therapist id when the lookup fails.
func (s *Service) therapistUserID(ctx context.Context, therapistID uuid.UUID) uuid.UUID {
	therapist, err := s.therapists.Get(ctx, therapistID)
	if err != nil {
		s.logger.Error(err, "failed to resolve therapist user",
			"therapist_id", therapistID.String())
		return therapistID
	}
	return therapist.UserID
}
