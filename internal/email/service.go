package email

import (
	"context"
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"github.com/campuswell/wellbeing-api/internal/config"
	"github.com/campuswell/wellbeing-api/internal/model"
)

type Service interface {
	Send(ctx context.Context, envelope *model.EmailEnvelope) error
	SendCrisisAlert(ctx context.Context, to, studentName string, level model.CrisisLevel) error
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

func NewService(cfg config.EmailConfig) Service {
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *smtpService) Send(ctx context.Context, envelope *model.EmailEnvelope) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", envelope.To)
	m.SetHeader("Subject", envelope.Subject)
	m.SetBody("text/plain", envelope.Text)
	if envelope.HTML != "" {
		m.AddAlternative("text/html", envelope.HTML)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *smtpService) SendCrisisAlert(ctx context.Context, to, studentName string, level model.CrisisLevel) error {
	envelope := &model.EmailEnvelope{
		To:      to,
		Subject: fmt.Sprintf("URGENT: crisis alert (%s)", level),
		Text: fmt.Sprintf(
			"A %s severity crisis was detected for %s. Please review the alert and reach out immediately.",
			level, studentName,
		),
	}
	return s.Send(ctx, envelope)
}
