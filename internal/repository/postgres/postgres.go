package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/campuswell/wellbeing-api/internal/repository"
)

type userRepository struct {
	db *sqlx.DB
}

type therapistRepository struct {
	db *sqlx.DB
}

type intakeRepository struct {
	BaseRepository
}

type assignmentRepository struct {
	BaseRepository
}

type appointmentRepository struct {
	BaseRepository
}

type messageRepository struct {
	db *sqlx.DB
}

type moderationLogRepository struct {
	db *sqlx.DB
}

type crisisAlertRepository struct {
	BaseRepository
}

type rescheduleRepository struct {
	db *sqlx.DB
}

type alternativeOptionsRepository struct {
	db *sqlx.DB
}

type notificationRepository struct {
	db *sqlx.DB
}

type chatRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) repository.UserRepository {
	return &userRepository{db: db}
}

func NewTherapistRepository(db *sqlx.DB) repository.TherapistRepository {
	return &therapistRepository{db: db}
}

func NewIntakeRepository(base BaseRepository) repository.IntakeRepository {
	return &intakeRepository{base}
}

func NewAssignmentRepository(base BaseRepository) repository.AssignmentRepository {
	return &assignmentRepository{base}
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{NewBaseRepository(db)}
}

func NewMessageRepository(db *sqlx.DB) repository.MessageRepository {
	return &messageRepository{db: db}
}

func NewModerationLogRepository(db *sqlx.DB) repository.ModerationLogRepository {
	return &moderationLogRepository{db: db}
}

func NewCrisisAlertRepository(base BaseRepository) repository.CrisisAlertRepository {
	return &crisisAlertRepository{base}
}

func NewRescheduleRepository(db *sqlx.DB) repository.RescheduleRepository {
	return &rescheduleRepository{db: db}
}

func NewAlternativeOptionsRepository(db *sqlx.DB) repository.AlternativeOptionsRepository {
	return &alternativeOptionsRepository{db: db}
}

func NewNotificationRepository(db *sqlx.DB) repository.NotificationRepository {
	return &notificationRepository{db: db}
}

func NewChatRepository(db *sqlx.DB) repository.ChatRepository {
	return &chatRepository{db: db}
}
