package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/campuswell/wellbeing-api/internal/config"
	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/repository"
	"github.com/campuswell/wellbeing-api/internal/service/crisis"
	"github.com/campuswell/wellbeing-api/pkg/logger"
	"github.com/campuswell/wellbeing-api/pkg/metrics"
)

// costPerThousandTokens estimates spend when the upstream caller does
// not supply one.
const costPerThousandTokens = 0.002

// Notifier writes durable notifications.
type Notifier interface {
	Notify(ctx context.Context, n *model.Notification) error
}

// ExchangeResult is a recorded turn plus the immediate safety message
// the caller should show when the prompt tripped crisis detection.
type ExchangeResult struct {
	Exchange       *model.ChatExchange
	CrisisResponse string
}

// Service records chatbot turns for cost accounting and screens every
// prompt for crisis language. Response generation happens upstream.
type Service struct {
	cfg         config.CrisisConfig
	exchanges   repository.ChatRepository
	assignments repository.AssignmentRepository
	therapists  repository.TherapistRepository
	alerts      repository.CrisisAlertRepository
	classifier  *crisis.Classifier
	notifier    Notifier
	logger      *logger.Logger
	metrics     *metrics.Metrics
}

func NewService(
	cfg config.CrisisConfig,
	exchanges repository.ChatRepository,
	assignments repository.AssignmentRepository,
	therapists repository.TherapistRepository,
	alerts repository.CrisisAlertRepository,
	classifier *crisis.Classifier,
	notifier Notifier,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		cfg:         cfg,
		exchanges:   exchanges,
		assignments: assignments,
		therapists:  therapists,
		alerts:      alerts,
		classifier:  classifier,
		notifier:    notifier,
		logger:      logger,
		metrics:     metrics,
	}
}

// RecordExchange persists one chatbot turn. The prompt is screened for
// crisis language; high-tier detections open a crisis alert and page
// the student's therapist, but never fail the recording.
func (s *Service) RecordExchange(ctx context.Context, ex *model.ChatExchange) (*ExchangeResult, error) {
	if ex.UserID == uuid.Nil {
		return nil, fmt.Errorf("user ID is required")
	}
	if ex.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	if ex.EstimatedCost == 0 && ex.TokensUsed > 0 {
		ex.EstimatedCost = float64(ex.TokensUsed) / 1000 * costPerThousandTokens
	}

	result := s.classifier.Classify(ex.Prompt)
	ex.CrisisLevel = result.Level
	if result.Level != model.CrisisNone {
		s.metrics.CrisisDetections.WithLabelValues(string(result.Level)).Inc()
	}

	if err := s.exchanges.CreateExchange(ctx, ex); err != nil {
		return nil, fmt.Errorf("failed to record chat exchange: %w", err)
	}

	out := &ExchangeResult{Exchange: ex}
	if result.Level.AtLeast(model.CrisisHigh) {
		out.CrisisResponse = s.crisisResponse()
		s.escalate(ctx, ex)
	}
	return out, nil
}

func (s *Service) crisisResponse() string {
	if !s.cfg.Enabled || s.cfg.ResponseTemplate == "" {
		return ""
	}
	return strings.ReplaceAll(s.cfg.ResponseTemplate, "{hotline}", s.cfg.HotlineNumber)
}

func (s *Service) escalate(ctx context.Context, ex *model.ChatExchange) {
	alert := &model.CrisisAlert{
		StudentID:    ex.UserID,
		CrisisLevel:  ex.CrisisLevel,
		Status:       model.CrisisAlertAutoEscalated,
		AutoDetected: true,
	}

	assignment, err := s.assignments.GetActiveByStudent(ctx, ex.UserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error(err, "failed to resolve assignment during chat escalation",
			"student_id", ex.UserID.String())
	}
	if assignment != nil {
		alert.TherapistID = &assignment.TherapistID
	}

	if err := s.alerts.Escalate(ctx, alert); err != nil {
		s.logger.Error(err, "failed to escalate chat crisis alert",
			"student_id", ex.UserID.String())
		return
	}

	if assignment == nil {
		return
	}
	recipient := assignment.TherapistID
	if therapist, err := s.therapists.Get(ctx, assignment.TherapistID); err == nil {
		recipient = therapist.UserID
	}
	if err := s.notifier.Notify(ctx, &model.Notification{
		UserID:    recipient,
		Type:      model.NotificationCrisisAlertUrgent,
		Message:   "Crisis language detected in a student's chatbot conversation.",
		RelatedID: &alert.ID,
		Priority:  model.PriorityCritical,
	}); err != nil {
		s.logger.Error(err, "failed to notify therapist of chat crisis",
			"therapist_id", assignment.TherapistID.String())
	}
}
