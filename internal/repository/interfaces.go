package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/campuswell/wellbeing-api/internal/model"
)

// ErrConflict is returned by conditional writes when the guarded predicate
// no longer holds (capacity exhausted, duplicate active appointment).
var ErrConflict = errors.New("repository: conflicting state")

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("repository: not found")

type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
	}

	TherapistRepository interface {
		Create(ctx context.Context, t *model.Therapist) error
		Get(ctx context.Context, id uuid.UUID) (*model.Therapist, error)
		GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Therapist, error)
		Update(ctx context.Context, t *model.Therapist) error
		List(ctx context.Context, filter *model.TherapistFilter) ([]*model.Therapist, error)
		// IncrementCaseload adds one student iff capacity remains. Returns
		// false when the guard fails (caseload already at max_students).
		IncrementCaseload(ctx context.Context, id uuid.UUID) (bool, error)
		DecrementCaseload(ctx context.Context, id uuid.UUID) error
	}

	IntakeRepository interface {
		// Create supersedes any prior active assessment for the student.
		Create(ctx context.Context, intake *model.IntakeAssessment) error
		GetActiveByStudent(ctx context.Context, studentID uuid.UUID) (*model.IntakeAssessment, error)
	}

	AssignmentRepository interface {
		// CreateActive deactivates any existing active assignment for the
		// student and inserts the new one in a single transaction.
		CreateActive(ctx context.Context, a *model.Assignment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Assignment, error)
		GetActiveByStudent(ctx context.Context, studentID uuid.UUID) (*model.Assignment, error)
		Deactivate(ctx context.Context, id uuid.UUID) error
	}

	AppointmentRepository interface {
		// CreateExclusive inserts iff the student has no other pending or
		// confirmed future appointment; returns ErrConflict on violation.
		// When emergencyOverride is set the guard is skipped.
		CreateExclusive(ctx context.Context, apt *model.Appointment, emergencyOverride bool) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, apt *model.Appointment) error
		SoftDelete(ctx context.Context, id uuid.UUID) error
		GetActiveByStudent(ctx context.Context, studentID uuid.UUID) (*model.Appointment, error)
		ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Appointment, error)
		// ListBookedForTherapist returns future pending/confirmed sessions.
		ListBookedForTherapist(ctx context.Context, therapistID uuid.UUID, from, to time.Time) ([]*model.Appointment, error)
		CountActiveForAssignment(ctx context.Context, assignmentID uuid.UUID) (int, error)
		// ExpireConfirmedBefore marks confirmed appointments older than the
		// cutoff as completed with auto_completed=true, returning the ids.
		ExpireConfirmedBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
		RecordJoin(ctx context.Context, id uuid.UUID, host bool) error
	}

	MessageRepository interface {
		Create(ctx context.Context, msg *model.Message) error
		ListForAssignment(ctx context.Context, assignmentID uuid.UUID, limit int) ([]*model.Message, error)
		MarkRead(ctx context.Context, assignmentID, readerID uuid.UUID) error
		CountBySenderSince(ctx context.Context, senderID uuid.UUID, since time.Time) (int, error)
		CountIdenticalSince(ctx context.Context, senderID uuid.UUID, hash string, since time.Time) (int, error)
	}

	ModerationLogRepository interface {
		Create(ctx context.Context, entry *model.ModerationLog) error
		Report(ctx context.Context, since time.Time) (*model.ModerationReport, error)
	}

	CrisisAlertRepository interface {
		// Escalate opens an alert for the student or raises the severity of
		// the open one; severity never decreases.
		Escalate(ctx context.Context, alert *model.CrisisAlert) error
		GetOpenByStudent(ctx context.Context, studentID uuid.UUID) (*model.CrisisAlert, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.CrisisAlertStatus) error
		CountAutoDetectedSince(ctx context.Context, since time.Time) (int64, error)
	}

	RescheduleRepository interface {
		Create(ctx context.Context, req *model.RescheduleRequest) error
		Get(ctx context.Context, id uuid.UUID) (*model.RescheduleRequest, error)
		Update(ctx context.Context, req *model.RescheduleRequest) error
		ListPendingForTherapist(ctx context.Context, therapistID uuid.UUID) ([]*model.RescheduleRequest, error)
	}

	AlternativeOptionsRepository interface {
		Create(ctx context.Context, opts *model.AlternativeOptions) error
		GetCurrentByStudent(ctx context.Context, studentID uuid.UUID) (*model.AlternativeOptions, error)
		DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, n *model.Notification) error
		ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*model.Notification, error)
		MarkRead(ctx context.Context, id, userID uuid.UUID) error
		MarkAllRead(ctx context.Context, userID uuid.UUID) error
	}

	ChatRepository interface {
		CreateExchange(ctx context.Context, ex *model.ChatExchange) error
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		BeginTx(ctx context.Context) (*sql.Tx, error)
		UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
