package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/campuswell/wellbeing-api/internal/email"
	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/repository"
	"github.com/campuswell/wellbeing-api/pkg/logger"
)

type Service interface {
	// Notify durably records an inbox row and queues a broker event.
	// The inbox write is the source of truth; broker delivery is
	// best-effort real-time on top of it.
	Notify(ctx context.Context, n *model.Notification) error
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*model.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	repo     repository.NotificationRepository
	outbox   repository.OutboxRepository
	users    repository.UserRepository
	emailSvc email.Service
	logger   *logger.Logger
}

func NewService(
	repo repository.NotificationRepository,
	outbox repository.OutboxRepository,
	users repository.UserRepository,
	emailSvc email.Service,
	logger *logger.Logger,
) Service {
	return &service{
		repo:     repo,
		outbox:   outbox,
		users:    users,
		emailSvc: emailSvc,
		logger:   logger,
	}
}

func (s *service) Notify(ctx context.Context, n *model.Notification) error {
	if n.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if n.Type == "" {
		return fmt.Errorf("notification type is required")
	}
	if n.Priority == "" {
		n.Priority = model.PriorityNormal
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	event := model.NotificationEvent{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           n.Type,
		Message:        n.Message,
		Priority:       n.Priority,
		CreatedAt:      n.CreatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}

	if err := s.outbox.Create(ctx, &model.OutboxEvent{
		EventType: "notifications",
		Payload:   payload,
	}); err != nil {
		// The inbox row exists; real-time delivery degrades to polling.
		s.logger.Error(err, "failed to queue notification event",
			"notification_id", n.ID.String())
	}

	if n.Priority == model.PriorityCritical {
		s.sendCriticalEmail(ctx, n)
	}

	return nil
}

func (s *service) sendCriticalEmail(ctx context.Context, n *model.Notification) {
	user, err := s.users.Get(ctx, n.UserID)
	if err != nil {
		s.logger.Error(err, "failed to resolve notification recipient",
			"user_id", n.UserID.String())
		return
	}

	envelope := &model.EmailEnvelope{
		To:      user.Email,
		Subject: "URGENT: action required",
		Text:    n.Message,
	}
	if err := s.emailSvc.Send(ctx, envelope); err != nil {
		s.logger.Error(err, "failed to send critical notification email",
			"user_id", n.UserID.String())
	}
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*model.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListForUser(ctx, userID, unreadOnly, limit)
}

func (s *service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	return s.repo.MarkRead(ctx, id, userID)
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, userID)
}
