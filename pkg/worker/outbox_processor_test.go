package worker

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/pkg/logger"
	"github.com/campuswell/wellbeing-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("test", "worker")

type statusUpdate struct {
	id      uuid.UUID
	status  model.OutboxStatus
	errMsg  *string
	retryAt *time.Time
}

// fakeOutboxRepo serves canned pending events and hands out real
// transactions from a sqlmock database so commit tracking works.
type fakeOutboxRepo struct {
	db         *sql.DB
	pending    []*model.OutboxEvent
	pendingErr error
	updates    []statusUpdate
	updateErr  error
}

func (f *fakeOutboxRepo) Create(_ context.Context, _ *model.OutboxEvent) error { return nil }

func (f *fakeOutboxRepo) GetPendingEventsWithLock(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutboxRepo) BeginTx(_ context.Context) (*sql.Tx, error) {
	return f.db.Begin()
}

func (f *fakeOutboxRepo) UpdateStatusTx(_ context.Context, _ *sql.Tx, id uuid.UUID, status model.OutboxStatus, errMsg *string, retryAt *time.Time) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, statusUpdate{id: id, status: status, errMsg: errMsg, retryAt: retryAt})
	return nil
}

func (f *fakeOutboxRepo) DeleteProcessedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type fakeBroker struct {
	published  []string
	publishErr error
}

func (f *fakeBroker) Publish(_ context.Context, channel string, _ interface{}) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, channel)
	return nil
}

func (f *fakeBroker) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return nil, nil
}

func (f *fakeBroker) Close() error { return nil }

func testProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:    10,
		PollInterval: 5 * time.Millisecond,
		MaxRetries:   5,
		RetryDelay:   30 * time.Second,
	}
}

func newProcessorFixture(t *testing.T, txCount int) (*OutboxProcessor, *fakeOutboxRepo, *fakeBroker) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// Rollback after a successful commit never reaches the driver, so
	// only Begin and Commit are expected per event.
	for i := 0; i < txCount; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}

	repo := &fakeOutboxRepo{db: db}
	broker := &fakeBroker{}
	proc := NewOutboxProcessor(repo, broker, testProcessorConfig(), logger.NewLogger(nil), testMetrics)
	return proc, repo, broker
}

func pendingEvent(retryCount int) *model.OutboxEvent {
	return &model.OutboxEvent{
		ID:         uuid.New(),
		EventType:  "notifications",
		Payload:    []byte(`{"user_id":"u1"}`),
		Status:     model.OutboxStatusPending,
		RetryCount: retryCount,
	}
}

func TestProcessEventsPublishesBatch(t *testing.T) {
	proc, repo, broker := newProcessorFixture(t, 2)
	repo.pending = []*model.OutboxEvent{pendingEvent(0), pendingEvent(0)}

	require.NoError(t, proc.processEvents(context.Background()))

	assert.Equal(t, []string{"notifications", "notifications"}, broker.published)
	require.Len(t, repo.updates, 2)
	for i, u := range repo.updates {
		assert.Equal(t, repo.pending[i].ID, u.id)
		assert.Equal(t, model.OutboxStatusProcessed, u.status)
		assert.Nil(t, u.errMsg)
		assert.Nil(t, u.retryAt)
	}
}

func TestProcessEventsRespectsBatchSize(t *testing.T) {
	proc, repo, broker := newProcessorFixture(t, 10)
	proc.config.BatchSize = 10
	for i := 0; i < 15; i++ {
		repo.pending = append(repo.pending, pendingEvent(0))
	}

	require.NoError(t, proc.processEvents(context.Background()))

	assert.Len(t, broker.published, 10)
}

func TestProcessEventPublishFailureSchedulesRetry(t *testing.T) {
	proc, repo, broker := newProcessorFixture(t, 1)
	broker.publishErr = errors.New("redis unavailable")
	event := pendingEvent(0)

	before := time.Now()
	err := proc.processEvent(context.Background(), event)
	assert.Error(t, err)

	require.Len(t, repo.updates, 1)
	u := repo.updates[0]
	assert.Equal(t, model.OutboxStatusRetry, u.status)
	require.NotNil(t, u.errMsg)
	assert.Equal(t, "redis unavailable", *u.errMsg)
	require.NotNil(t, u.retryAt)
	assert.WithinDuration(t, before.Add(30*time.Second), *u.retryAt, time.Second)
}

func TestProcessEventRetryBackoffDoubles(t *testing.T) {
	proc, repo, broker := newProcessorFixture(t, 1)
	broker.publishErr = errors.New("redis unavailable")

	before := time.Now()
	_ = proc.processEvent(context.Background(), pendingEvent(2))

	require.Len(t, repo.updates, 1)
	require.NotNil(t, repo.updates[0].retryAt)
	assert.WithinDuration(t, before.Add(120*time.Second), *repo.updates[0].retryAt, time.Second)
}

func TestProcessEventExhaustedRetriesMarksFailed(t *testing.T) {
	proc, repo, broker := newProcessorFixture(t, 1)
	broker.publishErr = errors.New("redis unavailable")

	_ = proc.processEvent(context.Background(), pendingEvent(4))

	require.Len(t, repo.updates, 1)
	assert.Equal(t, model.OutboxStatusFailed, repo.updates[0].status)
	assert.Nil(t, repo.updates[0].retryAt)
}

func TestProcessEventsPendingFetchFailure(t *testing.T) {
	proc, repo, broker := newProcessorFixture(t, 0)
	repo.pendingErr = errors.New("db down")

	assert.Error(t, proc.processEvents(context.Background()))
	assert.Empty(t, broker.published)
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := &fakeOutboxRepo{db: db}
	broker := &fakeBroker{}
	log := logger.NewLogger(nil)

	for _, mutate := range []func(*OutboxProcessorConfig){
		func(c *OutboxProcessorConfig) { c.BatchSize = 0 },
		func(c *OutboxProcessorConfig) { c.PollInterval = 0 },
		func(c *OutboxProcessorConfig) { c.MaxRetries = 0 },
		func(c *OutboxProcessorConfig) { c.RetryDelay = 0 },
	} {
		cfg := testProcessorConfig()
		mutate(&cfg)
		assert.Panics(t, func() {
			NewOutboxProcessor(repo, broker, cfg, log, testMetrics)
		})
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	proc, _, _ := newProcessorFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		proc.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop after cancellation")
	}
}
