package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campuswell/wellbeing-api/internal/config"
	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/repository"
	"github.com/campuswell/wellbeing-api/internal/zoom"
	apperrors "github.com/campuswell/wellbeing-api/pkg/errors"
	"github.com/campuswell/wellbeing-api/pkg/logger"
	"github.com/campuswell/wellbeing-api/pkg/metrics"
)

const (
	// joinWindowMinutes is the half-width of the window centered on the
	// scheduled start during which joining is allowed.
	joinWindowMinutes = 5

	// emergencyLeadTime is how far out an emergency session is booked.
	emergencyLeadTime = 30 * time.Minute

	// expiryGrace is how long after the scheduled end a confirmed
	// session may linger before the sweep marks it completed.
	expiryGrace = 2 * time.Hour

	// rebookGrace lets a student replace an existing booking as long as
	// it is at least this far away.
	rebookGrace = 24 * time.Hour

	// minAdvance is the shortest notice accepted for a manual booking.
	minAdvance = time.Hour

	alternativesTTL   = 24 * time.Hour
	alternativesCount = 3

	businessStartHour = 9
	businessEndHour   = 17
)

// MeetingProvider creates and manages videoconference sessions.
// Implemented by the Zoom client; CreateMeeting never fails, it
// degrades to a locally synthesized fallback meeting.
type MeetingProvider interface {
	CreateMeeting(ctx context.Context, appointmentID string, req *zoom.MeetingRequest) *model.MeetingInfo
	UpdateMeeting(ctx context.Context, providerID string, startTime time.Time, duration int, timezone string) error
	CancelMeeting(ctx context.Context, providerID string) error
}

// Notifier writes durable notifications.
type Notifier interface {
	Notify(ctx context.Context, n *model.Notification) error
}

// CandidateFinder proposes replacement therapists for a student.
// Implemented by the triage service.
type CandidateFinder interface {
	Candidates(ctx context.Context, concern string, gender model.GenderPreference, level model.CrisisLevel, excluded []uuid.UUID, limit int) ([]*model.Therapist, error)
}

// Scheduler owns the appointment lifecycle: slot discovery, booking,
// the confirmed/cancelled/completed state machine, reschedule requests,
// and alternative-therapist offers.
type Scheduler struct {
	cfg          config.SchedulingConfig
	appointments repository.AppointmentRepository
	assignments  repository.AssignmentRepository
	therapists   repository.TherapistRepository
	intakes      repository.IntakeRepository
	reschedules  repository.RescheduleRepository
	alternatives repository.AlternativeOptionsRepository
	meetings     MeetingProvider
	finder       CandidateFinder
	notifier     Notifier
	slots        *SlotGenerator
	logger       *logger.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewScheduler(
	cfg config.SchedulingConfig,
	appointments repository.AppointmentRepository,
	assignments repository.AssignmentRepository,
	therapists repository.TherapistRepository,
	intakes repository.IntakeRepository,
	reschedules repository.RescheduleRepository,
	alternatives repository.AlternativeOptionsRepository,
	meetings MeetingProvider,
	finder CandidateFinder,
	notifier Notifier,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		appointments: appointments,
		assignments:  assignments,
		therapists:   therapists,
		intakes:      intakes,
		reschedules:  reschedules,
		alternatives: alternatives,
		meetings:     meetings,
		finder:       finder,
		notifier:     notifier,
		slots:        NewSlotGenerator(cfg),
		logger:       logger,
		metrics:      metrics,
		now:          time.Now,
	}
}

// AvailableSlots returns the therapist's next open instants, narrowed
// to the urgent horizon for high-tier crisis levels.
func (s *Scheduler) AvailableSlots(ctx context.Context, therapistID uuid.UUID, level model.CrisisLevel) ([]time.Time, error) {
	therapist, err := s.therapists.Get(ctx, therapistID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("therapist", err)
		}
		return nil, fmt.Errorf("failed to load therapist: %w", err)
	}

	booked, err := s.bookedWindow(ctx, therapistID)
	if err != nil {
		return nil, err
	}
	return s.slots.Generate(therapist, booked, level), nil
}

// ScheduleInitial books the first session for a fresh assignment. For a
// critical crisis the session is an emergency one: thirty minutes long,
// starting within the lead time even if the first open slot is later.
func (s *Scheduler) ScheduleInitial(ctx context.Context, studentID, therapistID uuid.UUID, level model.CrisisLevel) (*model.Appointment, error) {
	if level == model.CrisisCritical {
		return s.ScheduleEmergencySession(ctx, studentID, therapistID)
	}

	therapist, err := s.therapists.Get(ctx, therapistID)
	if err != nil {
		return nil, fmt.Errorf("failed to load therapist: %w", err)
	}
	booked, err := s.bookedWindow(ctx, therapistID)
	if err != nil {
		return nil, err
	}

	start, ok := s.slots.First(therapist, booked, level)
	if !ok {
		return nil, apperrors.Unavailable("no open slots for the assigned therapist", nil)
	}

	apt := &model.Appointment{
		StudentID:       studentID,
		TherapistID:     therapistID,
		StartTime:       start,
		DurationMinutes: model.DefaultSessionMinutes,
		Type:            "initial",
		Status:          model.AppointmentStatusConfirmed,
		CrisisLevel:     level,
		AutoScheduled:   true,
	}
	s.attachAssignment(ctx, apt)

	if err := s.createWithMeeting(ctx, apt, "Counseling Session", false); err != nil {
		return nil, err
	}
	s.metrics.AppointmentsCreated.WithLabelValues("auto").Inc()

	s.notifyBoth(ctx, apt, therapist,
		model.NotificationAppointmentScheduled,
		fmt.Sprintf("Your first session is booked for %s.", start.Format(time.RFC1123)),
		"An initial session has been auto-scheduled with a new student.",
		model.PriorityNormal)
	return apt, nil
}

// ScheduleEmergencySession books an immediate thirty-minute session,
// bypassing both availability and the single-active-appointment guard.
func (s *Scheduler) ScheduleEmergencySession(ctx context.Context, studentID, therapistID uuid.UUID) (*model.Appointment, error) {
	therapist, err := s.therapists.Get(ctx, therapistID)
	if err != nil {
		return nil, fmt.Errorf("failed to load therapist: %w", err)
	}

	apt := &model.Appointment{
		StudentID:       studentID,
		TherapistID:     therapistID,
		StartTime:       s.now().Add(emergencyLeadTime),
		DurationMinutes: model.EmergencySessionMinutes,
		Type:            "emergency",
		Status:          model.AppointmentStatusConfirmed,
		CrisisLevel:     model.CrisisCritical,
		AutoScheduled:   true,
	}
	s.attachAssignment(ctx, apt)

	if err := s.createWithMeeting(ctx, apt, "Emergency Support Session", true); err != nil {
		return nil, err
	}
	s.metrics.AppointmentsCreated.WithLabelValues("auto").Inc()

	s.notifyBoth(ctx, apt, therapist,
		model.NotificationEmergencySession,
		"An emergency support session has been scheduled for you in the next 30 minutes.",
		"EMERGENCY: an immediate session has been scheduled with a high-risk student.",
		model.PriorityCritical)
	return apt, nil
}

// BookSlot books a student-selected slot. The slot must come from the
// generator's current offers and the therapist must either hold the
// student's active assignment or appear in an unexpired alternatives
// offer, in which case the student is reassigned first.
func (s *Scheduler) BookSlot(ctx context.Context, studentID, therapistID uuid.UUID, start time.Time) (*model.Appointment, error) {
	assignmentID, err := s.resolveAssignment(ctx, studentID, therapistID)
	if err != nil {
		return nil, err
	}

	level := model.CrisisNone
	if intake, err := s.intakes.GetActiveByStudent(ctx, studentID); err == nil {
		level = intake.CrisisLevel
	}

	therapist, err := s.therapists.Get(ctx, therapistID)
	if err != nil {
		return nil, fmt.Errorf("failed to load therapist: %w", err)
	}
	booked, err := s.bookedWindow(ctx, therapistID)
	if err != nil {
		return nil, err
	}
	if !s.slots.Contains(therapist, booked, level, start) {
		return nil, apperrors.BadRequest("requested slot is not available", nil)
	}

	apt := &model.Appointment{
		StudentID:       studentID,
		TherapistID:     therapistID,
		AssignmentID:    assignmentID,
		StartTime:       start,
		DurationMinutes: model.DefaultSessionMinutes,
		Type:            "regular",
		Status:          model.AppointmentStatusPending,
		CrisisLevel:     level,
	}
	if err := s.createWithMeeting(ctx, apt, "Counseling Session", false); err != nil {
		if err = s.rebookWithGrace(ctx, apt, err); err != nil {
			return nil, err
		}
	}
	s.metrics.AppointmentsCreated.WithLabelValues("manual").Inc()

	s.notifyBoth(ctx, apt, therapist,
		model.NotificationAppointmentScheduled,
		fmt.Sprintf("Your appointment request for %s is awaiting confirmation.", start.Format(time.RFC1123)),
		fmt.Sprintf("A student requested a session on %s.", start.Format(time.RFC1123)),
		model.PriorityNormal)
	return apt, nil
}

// rebookWithGrace resolves a booking conflict by replacing the blocking
// appointment, allowed only when that appointment is still at least the
// grace period away.
func (s *Scheduler) rebookWithGrace(ctx context.Context, apt *model.Appointment, cause error) error {
	appErr, ok := apperrors.AsAppError(cause)
	if !ok || appErr.Code != apperrors.ErrConflict {
		return cause
	}

	existing, err := s.appointments.GetActiveByStudent(ctx, apt.StudentID)
	if err != nil {
		return cause
	}
	if existing.StartTime.Before(s.now().Add(rebookGrace)) {
		return cause
	}

	if err := s.cancelAppointment(ctx, existing, "student", "superseded by a new booking", false); err != nil {
		return cause
	}
	return s.createWithMeeting(ctx, apt, "Counseling Session", false)
}

// TimeValidation is the outcome of a pre-booking time check. Errors
// make the time unbookable; warnings are advisory.
type TimeValidation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidateTime checks a proposed start against notice, horizon, buffer
// and business-hours rules without booking anything.
func (s *Scheduler) ValidateTime(ctx context.Context, therapistID uuid.UUID, start time.Time) (*TimeValidation, error) {
	v := &TimeValidation{Valid: true}
	now := s.now()

	if start.Before(now.Add(minAdvance)) {
		v.Errors = append(v.Errors, fmt.Sprintf("appointments need at least %d minutes notice", int(minAdvance.Minutes())))
	}
	if start.After(now.AddDate(0, 0, s.cfg.HorizonDays)) {
		v.Errors = append(v.Errors, fmt.Sprintf("appointments can be booked at most %d days ahead", s.cfg.HorizonDays))
	}

	booked, err := s.bookedWindow(ctx, therapistID)
	if err != nil {
		return nil, err
	}
	buffer := time.Duration(s.cfg.BufferMinutes) * time.Minute
	for _, b := range booked {
		diff := start.Sub(b.StartTime)
		if diff < 0 {
			diff = -diff
		}
		if diff < buffer {
			v.Errors = append(v.Errors, "time conflicts with an existing session")
			break
		}
	}

	local := start.In(s.slots.Location())
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		v.Warnings = append(v.Warnings, "weekend sessions may have limited support")
	} else if local.Hour() < businessStartHour || local.Hour() >= businessEndHour {
		v.Warnings = append(v.Warnings, "time is outside typical business hours")
	}

	v.Valid = len(v.Errors) == 0
	return v, nil
}

// Confirm moves a pending appointment to confirmed. Only the assigned
// therapist may confirm.
func (s *Scheduler) Confirm(ctx context.Context, id, therapistID uuid.UUID) (*model.Appointment, error) {
	apt, err := s.getAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if apt.TherapistID != therapistID {
		return nil, apperrors.Forbidden("appointment belongs to another therapist")
	}
	if apt.Status != model.AppointmentStatusPending {
		return nil, apperrors.Conflict("only pending appointments can be confirmed", nil)
	}

	apt.Status = model.AppointmentStatusConfirmed
	if err := s.appointments.Update(ctx, apt); err != nil {
		return nil, fmt.Errorf("failed to confirm appointment: %w", err)
	}

	s.notify(ctx, apt.StudentID, model.NotificationAppointmentConfirmed,
		fmt.Sprintf("Your appointment on %s is confirmed.", apt.StartTime.Format(time.RFC1123)),
		&apt.ID, model.PriorityNormal)
	return apt, nil
}

// Cancel cancels a pending or confirmed appointment. Cancelling an
// already cancelled appointment is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, id uuid.UUID, cancelledBy, reason string) (*model.Appointment, error) {
	apt, err := s.getAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if apt.Status == model.AppointmentStatusCancelled {
		return apt, nil
	}
	if apt.Status == model.AppointmentStatusCompleted {
		return nil, apperrors.Conflict("completed appointments cannot be cancelled", nil)
	}

	if err := s.cancelAppointment(ctx, apt, cancelledBy, reason, true); err != nil {
		return nil, err
	}

	if therapist, err := s.therapists.Get(ctx, apt.TherapistID); err == nil {
		s.notifyBoth(ctx, apt, therapist,
			model.NotificationAppointmentCancelled,
			fmt.Sprintf("Your appointment on %s was cancelled.", apt.StartTime.Format(time.RFC1123)),
			fmt.Sprintf("The session on %s was cancelled: %s", apt.StartTime.Format(time.RFC1123), reason),
			model.PriorityNormal)
	}
	return apt, nil
}

// Reschedule moves a confirmed appointment to a new validated slot and
// refreshes the provider meeting. Used by therapist and admin flows.
func (s *Scheduler) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time) (*model.Appointment, error) {
	apt, err := s.getAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if apt.Status != model.AppointmentStatusConfirmed {
		return nil, apperrors.Conflict("only confirmed appointments can be rescheduled", nil)
	}

	therapist, err := s.therapists.Get(ctx, apt.TherapistID)
	if err != nil {
		return nil, fmt.Errorf("failed to load therapist: %w", err)
	}
	booked, err := s.bookedWindow(ctx, apt.TherapistID)
	if err != nil {
		return nil, err
	}
	// The appointment being moved must not block its own new slot.
	others := booked[:0]
	for _, b := range booked {
		if b.ID != apt.ID {
			others = append(others, b)
		}
	}
	if !s.slots.Contains(therapist, others, apt.CrisisLevel, newStart) {
		return nil, apperrors.BadRequest("requested slot is not available", nil)
	}

	s.refreshMeeting(ctx, apt, newStart)
	apt.StartTime = newStart
	if err := s.appointments.Update(ctx, apt); err != nil {
		return nil, fmt.Errorf("failed to reschedule appointment: %w", err)
	}

	s.notifyBoth(ctx, apt, therapist,
		model.NotificationAppointmentRescheduled,
		fmt.Sprintf("Your appointment was moved to %s.", newStart.Format(time.RFC1123)),
		fmt.Sprintf("The session was moved to %s.", newStart.Format(time.RFC1123)),
		model.PriorityNormal)
	return apt, nil
}

// Complete marks a confirmed appointment as completed.
func (s *Scheduler) Complete(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.getAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if apt.Status != model.AppointmentStatusConfirmed {
		return nil, apperrors.Conflict("only confirmed appointments can be completed", nil)
	}

	now := s.now()
	apt.Status = model.AppointmentStatusCompleted
	apt.CompletedAt = &now
	if err := s.appointments.Update(ctx, apt); err != nil {
		return nil, fmt.Errorf("failed to complete appointment: %w", err)
	}
	return apt, nil
}

// CheckJoin evaluates a join attempt against the ten-minute window
// centered on the scheduled start and records successful joins.
func (s *Scheduler) CheckJoin(ctx context.Context, id uuid.UUID, host bool) (*model.JoinDecision, error) {
	apt, err := s.getAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	decision := &model.JoinDecision{AppointmentID: apt.ID, Urgency: "normal"}
	if apt.CrisisLevel.AtLeast(model.CrisisHigh) {
		decision.Urgency = "high"
	}

	switch apt.Status {
	case model.AppointmentStatusCancelled:
		decision.Status = model.JoinStatusCancelled
		decision.Message = "This appointment was cancelled."
		return decision, nil
	case model.AppointmentStatusCompleted:
		decision.Status = model.JoinStatusCompleted
		decision.Message = "This appointment has already ended."
		return decision, nil
	case model.AppointmentStatusPending:
		decision.Status = model.JoinStatusPending
		decision.Message = "This appointment is awaiting therapist confirmation."
		return decision, nil
	}

	minutes := int(apt.StartTime.Sub(s.now()).Minutes())
	switch {
	case minutes > joinWindowMinutes:
		decision.Status = model.JoinStatusWaiting
		decision.MinutesToWait = minutes - joinWindowMinutes
		decision.Message = fmt.Sprintf("The session opens in %d minutes.", decision.MinutesToWait)
	case minutes < -joinWindowMinutes:
		decision.Status = model.JoinStatusExpired
		decision.Message = "The join window for this appointment has passed."
	default:
		decision.MeetingAvailable = apt.MeetingInfo.MeetLink != ""
		if !decision.MeetingAvailable {
			decision.Status = model.JoinStatusWaiting
			decision.Message = "The meeting link is not ready yet. Please try again shortly."
			return decision, nil
		}
		decision.Status = model.JoinStatusAvailable
		decision.CanJoin = true
		decision.MeetLink = apt.MeetingInfo.MeetLink
		decision.Message = "Your session is ready to join."
		if err := s.appointments.RecordJoin(ctx, apt.ID, host); err != nil {
			s.logger.Error(err, "failed to record join", "appointment_id", apt.ID.String())
		}
	}
	return decision, nil
}

// ExpireOverdue sweeps confirmed appointments whose scheduled end
// passed more than the grace period ago, marking them auto-completed.
// The sweep is idempotent; fallback meetings are never cancelled
// remotely.
func (s *Scheduler) ExpireOverdue(ctx context.Context) (int, error) {
	ids, err := s.appointments.ExpireConfirmedBefore(ctx, s.now().Add(-expiryGrace))
	if err != nil {
		return 0, fmt.Errorf("failed to expire appointments: %w", err)
	}
	if len(ids) > 0 {
		s.metrics.AppointmentsExpired.Add(float64(len(ids)))
		s.logger.Info("expired overdue appointments", "count", len(ids))
	}
	return len(ids), nil
}

// Get returns a single appointment.
func (s *Scheduler) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return s.getAppointment(ctx, id)
}

// ListByStudent returns the student's appointment history.
func (s *Scheduler) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Appointment, error) {
	return s.appointments.ListByStudent(ctx, studentID)
}

// FileReschedule opens a student reschedule request against a confirmed
// appointment and notifies the therapist.
func (s *Scheduler) FileReschedule(ctx context.Context, studentID uuid.UUID, req *model.FileRescheduleRequest) (*model.RescheduleRequest, error) {
	aptID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		return nil, apperrors.BadRequest("invalid appointment id", err)
	}
	apt, err := s.getAppointment(ctx, aptID)
	if err != nil {
		return nil, err
	}
	if apt.StudentID != studentID {
		return nil, apperrors.Forbidden("appointment belongs to another student")
	}
	if apt.Status != model.AppointmentStatusConfirmed {
		return nil, apperrors.Conflict("only confirmed appointments can be rescheduled", nil)
	}

	request := &model.RescheduleRequest{
		AppointmentID:  apt.ID,
		StudentID:      studentID,
		TherapistID:    apt.TherapistID,
		RequestedSlots: model.TimeList(req.RequestedSlots),
		Status:         model.RescheduleStatusPending,
		StudentMessage: req.Message,
	}
	if err := s.reschedules.Create(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create reschedule request: %w", err)
	}

	if therapist, err := s.therapists.Get(ctx, apt.TherapistID); err == nil {
		s.notify(ctx, therapist.UserID, model.NotificationRescheduleRequested,
			"A student has asked to move an upcoming session.",
			&request.ID, model.PriorityNormal)
	}
	return request, nil
}

// RespondReschedule records the therapist's suggested times.
func (s *Scheduler) RespondReschedule(ctx context.Context, requestID, therapistID uuid.UUID, req *model.RespondRescheduleRequest) (*model.RescheduleRequest, error) {
	request, err := s.getReschedule(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.TherapistID != therapistID {
		return nil, apperrors.Forbidden("request belongs to another therapist")
	}
	if request.Status != model.RescheduleStatusPending {
		return nil, apperrors.Conflict("request has already been handled", nil)
	}

	request.SuggestedTimes = model.TimeList(req.SuggestedTimes)
	request.TherapistResponse = req.Response
	request.Status = model.RescheduleStatusResponded
	if err := s.reschedules.Update(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to update reschedule request: %w", err)
	}

	s.notify(ctx, request.StudentID, model.NotificationRescheduleResponded,
		"Your therapist has suggested new times for your session.",
		&request.ID, model.PriorityNormal)
	return request, nil
}

// RejectReschedule declines the request; the original appointment
// stands.
func (s *Scheduler) RejectReschedule(ctx context.Context, requestID, therapistID uuid.UUID, response string) (*model.RescheduleRequest, error) {
	request, err := s.getReschedule(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.TherapistID != therapistID {
		return nil, apperrors.Forbidden("request belongs to another therapist")
	}
	if request.Status != model.RescheduleStatusPending {
		return nil, apperrors.Conflict("request has already been handled", nil)
	}

	request.TherapistResponse = response
	request.Status = model.RescheduleStatusRejected
	if err := s.reschedules.Update(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to update reschedule request: %w", err)
	}

	s.notify(ctx, request.StudentID, model.NotificationRescheduleRejected,
		"Your reschedule request was declined; the original time stands.",
		&request.ID, model.PriorityNormal)
	return request, nil
}

// SelectRescheduleSlot books one of the therapist's suggested times,
// cancelling the original appointment. The therapist keeps the student,
// so the caseload is untouched.
func (s *Scheduler) SelectRescheduleSlot(ctx context.Context, requestID, studentID uuid.UUID, start time.Time) (*model.Appointment, error) {
	request, err := s.getReschedule(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.StudentID != studentID {
		return nil, apperrors.Forbidden("request belongs to another student")
	}
	if request.Status != model.RescheduleStatusResponded {
		return nil, apperrors.Conflict("request has no suggested times to select", nil)
	}
	suggested := false
	for _, t := range request.SuggestedTimes {
		if t.Equal(start) {
			suggested = true
			break
		}
	}
	if !suggested {
		return nil, apperrors.BadRequest("selected time was not suggested", nil)
	}

	old, err := s.getAppointment(ctx, request.AppointmentID)
	if err != nil {
		return nil, err
	}
	if old.Status == model.AppointmentStatusPending || old.Status == model.AppointmentStatusConfirmed {
		if err := s.cancelAppointment(ctx, old, "student_reschedule", "rescheduled to a new time", false); err != nil {
			return nil, err
		}
	}

	apt := &model.Appointment{
		StudentID:       old.StudentID,
		TherapistID:     old.TherapistID,
		AssignmentID:    old.AssignmentID,
		StartTime:       start,
		DurationMinutes: old.DurationMinutes,
		Type:            old.Type,
		Status:          model.AppointmentStatusConfirmed,
		CrisisLevel:     old.CrisisLevel,
	}
	if err := s.createWithMeeting(ctx, apt, "Counseling Session", false); err != nil {
		return nil, err
	}
	s.metrics.AppointmentsCreated.WithLabelValues("manual").Inc()

	request.Status = model.RescheduleStatusFulfilled
	if err := s.reschedules.Update(ctx, request); err != nil {
		s.logger.Error(err, "failed to mark reschedule request fulfilled",
			"request_id", request.ID.String())
	}

	if therapist, err := s.therapists.Get(ctx, apt.TherapistID); err == nil {
		s.notifyBoth(ctx, apt, therapist,
			model.NotificationAppointmentRescheduled,
			fmt.Sprintf("Your session was moved to %s.", start.Format(time.RFC1123)),
			fmt.Sprintf("The student accepted the new time %s.", start.Format(time.RFC1123)),
			model.PriorityNormal)
	}
	return apt, nil
}

// PendingReschedules lists open requests awaiting the therapist.
func (s *Scheduler) PendingReschedules(ctx context.Context, therapistID uuid.UUID) ([]*model.RescheduleRequest, error) {
	return s.reschedules.ListPendingForTherapist(ctx, therapistID)
}

// SuggestAlternatives cancels the appointment and offers the student up
// to three replacement therapists, each paired with their next open
// slot. The offer expires after a day.
func (s *Scheduler) SuggestAlternatives(ctx context.Context, appointmentID uuid.UUID, reason string) (*model.AlternativeOptions, error) {
	apt, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if apt.Status == model.AppointmentStatusPending || apt.Status == model.AppointmentStatusConfirmed {
		if err := s.cancelAppointment(ctx, apt, "system", reason, true); err != nil {
			return nil, err
		}
	}

	concern := ""
	gender := model.GenderNoPreference
	level := apt.CrisisLevel
	if intake, err := s.intakes.GetActiveByStudent(ctx, apt.StudentID); err == nil {
		concern = intake.PrimaryConcern
		gender = intake.TherapistGender
		if intake.CrisisLevel.AtLeast(level) {
			level = intake.CrisisLevel
		}
	}

	candidates, err := s.finder.Candidates(ctx, concern, gender, level, []uuid.UUID{apt.TherapistID}, alternativesCount)
	if err != nil {
		return nil, fmt.Errorf("failed to find alternative therapists: %w", err)
	}

	alternatives := make(model.AlternativeList, 0, len(candidates))
	for _, cand := range candidates {
		booked, err := s.bookedWindow(ctx, cand.ID)
		if err != nil {
			return nil, err
		}
		slot, ok := s.slots.First(cand, booked, level)
		if !ok {
			continue
		}
		alternatives = append(alternatives, model.AlternativeCandidate{
			TherapistID:     cand.ID,
			TherapistName:   cand.Name,
			LicenseNumber:   cand.LicenseNumber,
			Specializations: []string(cand.Specializations),
			NextSlot:        slot,
		})
	}

	opts := &model.AlternativeOptions{
		StudentID:             apt.StudentID,
		OriginalAppointmentID: apt.ID,
		OriginalTherapistID:   apt.TherapistID,
		Alternatives:          alternatives,
		Reason:                reason,
		ExpiresAt:             s.now().Add(alternativesTTL),
	}
	if err := s.alternatives.Create(ctx, opts); err != nil {
		return nil, fmt.Errorf("failed to store alternative options: %w", err)
	}

	s.notify(ctx, apt.StudentID, model.NotificationAlternativesOffered,
		"Your therapist is unavailable. We found alternative therapists for you to choose from.",
		&opts.ID, model.PriorityUrgent)
	return opts, nil
}

// CurrentAlternatives returns the student's unexpired offer, if any.
func (s *Scheduler) CurrentAlternatives(ctx context.Context, studentID uuid.UUID) (*model.AlternativeOptions, error) {
	opts, err := s.alternatives.GetCurrentByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("alternative options", err)
		}
		return nil, fmt.Errorf("failed to load alternative options: %w", err)
	}
	return opts, nil
}

// CleanupExpiredAlternatives deletes offers past their expiry.
func (s *Scheduler) CleanupExpiredAlternatives(ctx context.Context) (int64, error) {
	return s.alternatives.DeleteExpired(ctx, s.now())
}

// resolveAssignment returns the assignment id authorizing the booking.
// A therapist from an unexpired alternatives offer triggers a
// reassignment that claims a caseload slot first.
func (s *Scheduler) resolveAssignment(ctx context.Context, studentID, therapistID uuid.UUID) (*uuid.UUID, error) {
	assignment, err := s.assignments.GetActiveByStudent(ctx, studentID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	if assignment != nil && assignment.TherapistID == therapistID {
		return &assignment.ID, nil
	}

	opts, err := s.alternatives.GetCurrentByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Forbidden("no active assignment with this therapist")
		}
		return nil, fmt.Errorf("failed to load alternative options: %w", err)
	}
	offered := false
	for _, alt := range opts.Alternatives {
		if alt.TherapistID == therapistID {
			offered = true
			break
		}
	}
	if !offered {
		return nil, apperrors.Forbidden("no active assignment with this therapist")
	}

	claimed, err := s.therapists.IncrementCaseload(ctx, therapistID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim caseload slot: %w", err)
	}
	if !claimed {
		return nil, apperrors.Conflict("therapist no longer has capacity", nil)
	}

	// The previous therapist's caseload was already released when the
	// original appointment was cancelled.
	reassigned := &model.Assignment{
		StudentID:   studentID,
		TherapistID: therapistID,
		Status:      model.AssignmentActive,
	}
	if err := s.assignments.CreateActive(ctx, reassigned); err != nil {
		if derr := s.therapists.DecrementCaseload(ctx, therapistID); derr != nil {
			s.logger.Error(derr, "failed to release caseload after reassignment failure",
				"therapist_id", therapistID.String())
		}
		return nil, fmt.Errorf("failed to reassign student: %w", err)
	}
	return &reassigned.ID, nil
}

// createWithMeeting provisions the provider meeting and inserts the
// appointment behind the single-active guard.
func (s *Scheduler) createWithMeeting(ctx context.Context, apt *model.Appointment, topic string, emergencyOverride bool) error {
	apt.ID = uuid.New()
	apt.MeetingInfo = *s.meetings.CreateMeeting(ctx, apt.ID.String(), &zoom.MeetingRequest{
		Topic:     topic,
		StartTime: apt.StartTime,
		Duration:  apt.DurationMinutes,
		Timezone:  s.cfg.Timezone,
		Agenda:    "Confidential counseling session",
	})

	if err := s.appointments.CreateExclusive(ctx, apt, emergencyOverride); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return apperrors.Conflict("student already has an active appointment", err)
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

// cancelAppointment performs the shared cancellation steps: best-effort
// remote meeting cancel, status update, and optional caseload release
// when no active sessions remain on the assignment.
func (s *Scheduler) cancelAppointment(ctx context.Context, apt *model.Appointment, cancelledBy, reason string, releaseCaseload bool) error {
	if !model.IsFallbackID(apt.MeetingInfo.ProviderID) {
		if err := s.meetings.CancelMeeting(ctx, apt.MeetingInfo.ProviderID); err != nil {
			s.logger.Error(err, "failed to cancel provider meeting",
				"appointment_id", apt.ID.String())
		} else {
			apt.ZoomCancelled = true
		}
	}

	now := s.now()
	apt.Status = model.AppointmentStatusCancelled
	apt.CancelledBy = &cancelledBy
	apt.CancelReason = &reason
	apt.CancelledAt = &now
	if err := s.appointments.Update(ctx, apt); err != nil {
		return fmt.Errorf("failed to cancel appointment: %w", err)
	}
	s.metrics.AppointmentsCancelled.Inc()

	if releaseCaseload && apt.AssignmentID != nil {
		remaining, err := s.appointments.CountActiveForAssignment(ctx, *apt.AssignmentID)
		if err != nil {
			s.logger.Error(err, "failed to count active appointments",
				"assignment_id", apt.AssignmentID.String())
			return nil
		}
		if remaining == 0 {
			if err := s.therapists.DecrementCaseload(ctx, apt.TherapistID); err != nil {
				s.logger.Error(err, "failed to release caseload slot",
					"therapist_id", apt.TherapistID.String())
			}
		}
	}
	return nil
}

// refreshMeeting updates the provider meeting for a new start; when the
// update fails the remote meeting is cancelled and a fresh one created.
// Fallback meetings pass through the provider as no-ops.
func (s *Scheduler) refreshMeeting(ctx context.Context, apt *model.Appointment, newStart time.Time) {
	err := s.meetings.UpdateMeeting(ctx, apt.MeetingInfo.ProviderID, newStart, apt.DurationMinutes, s.cfg.Timezone)
	if err == nil {
		return
	}
	s.logger.Error(err, "failed to update provider meeting, recreating",
		"appointment_id", apt.ID.String())

	if cerr := s.meetings.CancelMeeting(ctx, apt.MeetingInfo.ProviderID); cerr != nil {
		s.logger.Error(cerr, "failed to cancel stale provider meeting",
			"appointment_id", apt.ID.String())
	}
	apt.MeetingInfo = *s.meetings.CreateMeeting(ctx, apt.ID.String(), &zoom.MeetingRequest{
		Topic:     "Counseling Session",
		StartTime: newStart,
		Duration:  apt.DurationMinutes,
		Timezone:  s.cfg.Timezone,
		Agenda:    "Confidential counseling session",
	})
}

func (s *Scheduler) attachAssignment(ctx context.Context, apt *model.Appointment) {
	assignment, err := s.assignments.GetActiveByStudent(ctx, apt.StudentID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error(err, "failed to resolve assignment",
				"student_id", apt.StudentID.String())
		}
		return
	}
	if assignment.TherapistID == apt.TherapistID {
		apt.AssignmentID = &assignment.ID
	}
}

func (s *Scheduler) bookedWindow(ctx context.Context, therapistID uuid.UUID) ([]*model.Appointment, error) {
	now := s.now()
	horizon := s.cfg.HorizonDays
	if fallbackHorizonDays > horizon {
		horizon = fallbackHorizonDays
	}
	booked, err := s.appointments.ListBookedForTherapist(ctx, therapistID, now, now.AddDate(0, 0, horizon+1))
	if err != nil {
		return nil, fmt.Errorf("failed to list booked appointments: %w", err)
	}
	return booked, nil
}

func (s *Scheduler) getAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.appointments.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, fmt.Errorf("failed to load appointment: %w", err)
	}
	return apt, nil
}

func (s *Scheduler) getReschedule(ctx context.Context, id uuid.UUID) (*model.RescheduleRequest, error) {
	request, err := s.reschedules.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("reschedule request", err)
		}
		return nil, fmt.Errorf("failed to load reschedule request: %w", err)
	}
	return request, nil
}

func (s *Scheduler) notify(ctx context.Context, userID uuid.UUID, typ, message string, relatedID *uuid.UUID, priority model.NotificationPriority) {
	if err := s.notifier.Notify(ctx, &model.Notification{
		UserID:    userID,
		Type:      typ,
		Message:   message,
		RelatedID: relatedID,
		Priority:  priority,
	}); err != nil {
		s.logger.Error(err, "failed to send notification", "user_id", userID.String())
	}
}

func (s *Scheduler) notifyBoth(ctx context.Context, apt *model.Appointment, therapist *model.Therapist, typ, studentMsg, therapistMsg string, priority model.NotificationPriority) {
	s.notify(ctx, apt.StudentID, typ, studentMsg, &apt.ID, priority)
	s.notify(ctx, therapist.UserID, typ, therapistMsg, &apt.ID, priority)
}
