package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/repository"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "sqlmock"), mock
}

func testAppointment() *model.Appointment {
	assignmentID := uuid.New()
	return &model.Appointment{
		StudentID:       uuid.New(),
		TherapistID:     uuid.New(),
		AssignmentID:    &assignmentID,
		StartTime:       time.Now().Add(48 * time.Hour),
		DurationMinutes: 50,
		Type:            "individual",
		Status:          model.AppointmentStatusPending,
	}
}

func TestCreateExclusiveLocksStudentBeforeGuard(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAppointmentRepository(db)
	apt := testAppointment()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(apt.StudentID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO appointments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.CreateExclusive(context.Background(), apt, false)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, apt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExclusiveGuardMissRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAppointmentRepository(db)
	apt := testAppointment()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO appointments").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CreateExclusive(context.Background(), apt, false)

	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExclusiveLockFailureAborts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAppointmentRepository(db)
	apt := testAppointment()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	err := repo.CreateExclusive(context.Background(), apt, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to lock student")
	assert.NoError(t, mock.ExpectationsWereMet())
}
