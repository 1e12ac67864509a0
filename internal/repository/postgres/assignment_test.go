package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/repository"
)

func TestCreateActiveLocksStudentThenSwapsAssignment(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAssignmentRepository(NewBaseRepository(db))
	a := &model.Assignment{StudentID: uuid.New(), TherapistID: uuid.New(), AutoAssigned: true}

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(a.StudentID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE assignments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO assignments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.CreateActive(context.Background(), a)

	require.NoError(t, err)
	assert.Equal(t, model.AssignmentActive, a.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateActiveUniqueViolationIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAssignmentRepository(NewBaseRepository(db))
	a := &model.Assignment{StudentID: uuid.New(), TherapistID: uuid.New()}

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE assignments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO assignments").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.CreateActive(context.Background(), a)

	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
