package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuswell/wellbeing-api/internal/config"
	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/repository"
	"github.com/campuswell/wellbeing-api/internal/service/crisis"
	"github.com/campuswell/wellbeing-api/pkg/logger"
	"github.com/campuswell/wellbeing-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("test", "chat")

type fakeExchanges struct {
	created   []*model.ChatExchange
	createErr error
}

func (f *fakeExchanges) CreateExchange(_ context.Context, ex *model.ChatExchange) error {
	if f.createErr != nil {
		return f.createErr
	}
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	f.created = append(f.created, ex)
	return nil
}

type fakeAssignments struct {
	active *model.Assignment
	getErr error
}

func (f *fakeAssignments) CreateActive(_ context.Context, _ *model.Assignment) error { return nil }
func (f *fakeAssignments) Get(_ context.Context, _ uuid.UUID) (*model.Assignment, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeAssignments) GetActiveByStudent(_ context.Context, _ uuid.UUID) (*model.Assignment, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.active == nil {
		return nil, repository.ErrNotFound
	}
	return f.active, nil
}
func (f *fakeAssignments) Deactivate(_ context.Context, _ uuid.UUID) error { return nil }

type fakeTherapists struct {
	byID map[uuid.UUID]*model.Therapist
}

func (f *fakeTherapists) Create(_ context.Context, _ *model.Therapist) error { return nil }
func (f *fakeTherapists) Get(_ context.Context, id uuid.UUID) (*model.Therapist, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}
func (f *fakeTherapists) GetByUserID(_ context.Context, _ uuid.UUID) (*model.Therapist, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeTherapists) Update(_ context.Context, _ *model.Therapist) error { return nil }
func (f *fakeTherapists) List(_ context.Context, _ *model.TherapistFilter) ([]*model.Therapist, error) {
	return nil, nil
}
func (f *fakeTherapists) IncrementCaseload(_ context.Context, _ uuid.UUID) (bool, error) {
	return true, nil
}
func (f *fakeTherapists) DecrementCaseload(_ context.Context, _ uuid.UUID) error { return nil }

type fakeAlerts struct {
	escalated   []*model.CrisisAlert
	escalateErr error
}

func (f *fakeAlerts) Escalate(_ context.Context, alert *model.CrisisAlert) error {
	if f.escalateErr != nil {
		return f.escalateErr
	}
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	f.escalated = append(f.escalated, alert)
	return nil
}
func (f *fakeAlerts) GetOpenByStudent(_ context.Context, _ uuid.UUID) (*model.CrisisAlert, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeAlerts) UpdateStatus(_ context.Context, _ uuid.UUID, _ model.CrisisAlertStatus) error {
	return nil
}
func (f *fakeAlerts) CountAutoDetectedSince(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type fakeNotifier struct {
	sent      []*model.Notification
	notifyErr error
}

func (f *fakeNotifier) Notify(_ context.Context, n *model.Notification) error {
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.sent = append(f.sent, n)
	return nil
}

type chatFixture struct {
	svc         *Service
	exchanges   *fakeExchanges
	assignments *fakeAssignments
	therapists  *fakeTherapists
	alerts      *fakeAlerts
	notifier    *fakeNotifier
}

func newChatFixture(cfg config.CrisisConfig) *chatFixture {
	f := &chatFixture{
		exchanges:   &fakeExchanges{},
		assignments: &fakeAssignments{},
		therapists:  &fakeTherapists{byID: map[uuid.UUID]*model.Therapist{}},
		alerts:      &fakeAlerts{},
		notifier:    &fakeNotifier{},
	}
	f.svc = NewService(cfg, f.exchanges, f.assignments, f.therapists, f.alerts,
		crisis.NewClassifier(screeningKeywords()), f.notifier, logger.NewLogger(nil), testMetrics)
	return f
}

// screeningKeywords supplies the crisis vocabulary the way a deployment
// supplies it through config.
func screeningKeywords() crisis.Keywords {
	return crisis.Keywords{
		High:   []string{"end my life", "kill myself", "suicide"},
		Medium: []string{"hurt myself", "can't go on", "give up"},
		Low:    []string{"depressed", "hopeless"},
	}
}

func crisisConfig() config.CrisisConfig {
	return config.CrisisConfig{
		Enabled:          true,
		HotlineNumber:    "988",
		ResponseTemplate: "If you are in immediate danger, call {hotline} now.",
	}
}

func TestRecordExchangeValidation(t *testing.T) {
	f := newChatFixture(crisisConfig())

	_, err := f.svc.RecordExchange(context.Background(), &model.ChatExchange{Prompt: "hello"})
	assert.Error(t, err)

	_, err = f.svc.RecordExchange(context.Background(), &model.ChatExchange{UserID: uuid.New()})
	assert.Error(t, err)

	assert.Empty(t, f.exchanges.created)
}

func TestRecordExchangeDerivesCost(t *testing.T) {
	f := newChatFixture(crisisConfig())

	out, err := f.svc.RecordExchange(context.Background(), &model.ChatExchange{
		UserID:     uuid.New(),
		Prompt:     "how do I manage exam stress",
		TokensUsed: 1000,
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.002, out.Exchange.EstimatedCost, 1e-9)
	assert.Equal(t, model.CrisisNone, out.Exchange.CrisisLevel)
	assert.Empty(t, out.CrisisResponse)
	assert.Empty(t, f.alerts.escalated)
}

func TestRecordExchangeKeepsSuppliedCost(t *testing.T) {
	f := newChatFixture(crisisConfig())

	out, err := f.svc.RecordExchange(context.Background(), &model.ChatExchange{
		UserID:        uuid.New(),
		Prompt:        "hello",
		TokensUsed:    1000,
		EstimatedCost: 0.05,
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.05, out.Exchange.EstimatedCost, 1e-9)
}

func TestRecordExchangeCrisisResponse(t *testing.T) {
	f := newChatFixture(crisisConfig())
	studentID := uuid.New()

	out, err := f.svc.RecordExchange(context.Background(), &model.ChatExchange{
		UserID: studentID,
		Prompt: "I want to end my life",
	})
	require.NoError(t, err)

	assert.Equal(t, model.CrisisCritical, out.Exchange.CrisisLevel)
	assert.Equal(t, "If you are in immediate danger, call 988 now.", out.CrisisResponse)

	require.Len(t, f.alerts.escalated, 1)
	alert := f.alerts.escalated[0]
	assert.Equal(t, studentID, alert.StudentID)
	assert.Equal(t, model.CrisisAlertAutoEscalated, alert.Status)
	assert.True(t, alert.AutoDetected)
	assert.Nil(t, alert.TherapistID)
}

func TestRecordExchangeCrisisResponseDisabled(t *testing.T) {
	f := newChatFixture(config.CrisisConfig{Enabled: false})

	out, err := f.svc.RecordExchange(context.Background(), &model.ChatExchange{
		UserID: uuid.New(),
		Prompt: "I want to end my life",
	})
	require.NoError(t, err)

	assert.Empty(t, out.CrisisResponse)
	assert.Len(t, f.alerts.escalated, 1)
}

func TestRecordExchangePagesAssignedTherapist(t *testing.T) {
	f := newChatFixture(crisisConfig())
	studentID := uuid.New()
	therapistID := uuid.New()
	therapistUserID := uuid.New()

	f.assignments.active = &model.Assignment{
		ID:          uuid.New(),
		StudentID:   studentID,
		TherapistID: therapistID,
		Status:      model.AssignmentActive,
	}
	f.therapists.byID[therapistID] = &model.Therapist{
		Base:   model.Base{ID: therapistID},
		UserID: therapistUserID,
	}

	_, err := f.svc.RecordExchange(context.Background(), &model.ChatExchange{
		UserID: studentID,
		Prompt: "I can't go on, I might hurt myself tonight",
	})
	require.NoError(t, err)

	require.Len(t, f.alerts.escalated, 1)
	require.NotNil(t, f.alerts.escalated[0].TherapistID)
	assert.Equal(t, therapistID, *f.alerts.escalated[0].TherapistID)

	require.Len(t, f.notifier.sent, 1)
	page := f.notifier.sent[0]
	assert.Equal(t, therapistUserID, page.UserID)
	assert.Equal(t, model.NotificationCrisisAlertUrgent, page.Type)
	assert.Equal(t, model.PriorityCritical, page.Priority)
}

func TestRecordExchangeNoEscalationBelowHigh(t *testing.T) {
	f := newChatFixture(crisisConfig())

	out, err := f.svc.RecordExchange(context.Background(), &model.ChatExchange{
		UserID: uuid.New(),
		Prompt: "sometimes I hurt myself without noticing",
	})
	require.NoError(t, err)

	assert.Equal(t, model.CrisisMedium, out.Exchange.CrisisLevel)
	assert.Empty(t, out.CrisisResponse)
	assert.Empty(t, f.alerts.escalated)
	assert.Empty(t, f.notifier.sent)
}

func TestRecordExchangeEscalationFailureStillRecords(t *testing.T) {
	f := newChatFixture(crisisConfig())
	f.alerts.escalateErr = errors.New("db down")

	out, err := f.svc.RecordExchange(context.Background(), &model.ChatExchange{
		UserID: uuid.New(),
		Prompt: "I want to end my life",
	})
	require.NoError(t, err)

	assert.Len(t, f.exchanges.created, 1)
	assert.NotEmpty(t, out.CrisisResponse)
	assert.Empty(t, f.notifier.sent)
}

func TestRecordExchangeCreateFailure(t *testing.T) {
	f := newChatFixture(crisisConfig())
	f.exchanges.createErr = errors.New("insert failed")

	_, err := f.svc.RecordExchange(context.Background(), &model.ChatExchange{
		UserID: uuid.New(),
		Prompt: "hello",
	})
	assert.Error(t, err)
}
