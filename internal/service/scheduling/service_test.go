package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/repository"
	"github.com/campuswell/wellbeing-api/internal/zoom"
	apperrors "github.com/campuswell/wellbeing-api/pkg/errors"
	"github.com/campuswell/wellbeing-api/pkg/logger"
	"github.com/campuswell/wellbeing-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("test", "scheduling")

type fakeAppointments struct {
	byID         map[uuid.UUID]*model.Appointment
	booked       []*model.Appointment
	conflict     bool
	enforceGuard bool
	activeCount  int
	expired      []uuid.UUID
	expireCutoff time.Time
	joins        int
}

func newFakeAppointments() *fakeAppointments {
	return &fakeAppointments{byID: make(map[uuid.UUID]*model.Appointment)}
}

func (f *fakeAppointments) CreateExclusive(ctx context.Context, apt *model.Appointment, emergencyOverride bool) error {
	if f.conflict && !emergencyOverride {
		return repository.ErrConflict
	}
	if f.enforceGuard && !emergencyOverride {
		if existing, err := f.GetActiveByStudent(ctx, apt.StudentID); err == nil && existing.ID != apt.ID {
			return repository.ErrConflict
		}
	}
	f.byID[apt.ID] = apt
	return nil
}

func (f *fakeAppointments) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return apt, nil
}

func (f *fakeAppointments) Update(ctx context.Context, apt *model.Appointment) error {
	f.byID[apt.ID] = apt
	return nil
}

func (f *fakeAppointments) SoftDelete(ctx context.Context, id uuid.UUID) error {
	delete(f.byID, id)
	return nil
}

func (f *fakeAppointments) GetActiveByStudent(ctx context.Context, studentID uuid.UUID) (*model.Appointment, error) {
	for _, apt := range f.byID {
		if apt.StudentID == studentID && (apt.Status == model.AppointmentStatusPending || apt.Status == model.AppointmentStatusConfirmed) {
			return apt, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAppointments) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Appointment, error) {
	var out []*model.Appointment
	for _, apt := range f.byID {
		if apt.StudentID == studentID {
			out = append(out, apt)
		}
	}
	return out, nil
}

func (f *fakeAppointments) ListBookedForTherapist(ctx context.Context, therapistID uuid.UUID, from, to time.Time) ([]*model.Appointment, error) {
	return f.booked, nil
}

func (f *fakeAppointments) CountActiveForAssignment(ctx context.Context, assignmentID uuid.UUID) (int, error) {
	return f.activeCount, nil
}

func (f *fakeAppointments) ExpireConfirmedBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	f.expireCutoff = cutoff
	return f.expired, nil
}

func (f *fakeAppointments) RecordJoin(ctx context.Context, id uuid.UUID, host bool) error {
	f.joins++
	return nil
}

type fakeAssignments struct {
	active  *model.Assignment
	created []*model.Assignment
}

func (f *fakeAssignments) CreateActive(ctx context.Context, a *model.Assignment) error {
	a.ID = uuid.New()
	f.created = append(f.created, a)
	f.active = a
	return nil
}

func (f *fakeAssignments) Get(ctx context.Context, id uuid.UUID) (*model.Assignment, error) {
	if f.active != nil && f.active.ID == id {
		return f.active, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAssignments) GetActiveByStudent(ctx context.Context, studentID uuid.UUID) (*model.Assignment, error) {
	if f.active != nil && f.active.StudentID == studentID {
		return f.active, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAssignments) Deactivate(ctx context.Context, id uuid.UUID) error {
	return nil
}

type fakeTherapists struct {
	byID       map[uuid.UUID]*model.Therapist
	claim      bool
	increments int
	decrements int
}

func newFakeTherapists(list ...*model.Therapist) *fakeTherapists {
	f := &fakeTherapists{byID: make(map[uuid.UUID]*model.Therapist), claim: true}
	for _, t := range list {
		f.byID[t.ID] = t
	}
	return f
}

func (f *fakeTherapists) Create(ctx context.Context, t *model.Therapist) error { return nil }

func (f *fakeTherapists) Get(ctx context.Context, id uuid.UUID) (*model.Therapist, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (f *fakeTherapists) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Therapist, error) {
	for _, t := range f.byID {
		if t.UserID == userID {
			return t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeTherapists) Update(ctx context.Context, t *model.Therapist) error { return nil }

func (f *fakeTherapists) List(ctx context.Context, filter *model.TherapistFilter) ([]*model.Therapist, error) {
	return nil, nil
}

func (f *fakeTherapists) IncrementCaseload(ctx context.Context, id uuid.UUID) (bool, error) {
	if !f.claim {
		return false, nil
	}
	f.increments++
	return true, nil
}

func (f *fakeTherapists) DecrementCaseload(ctx context.Context, id uuid.UUID) error {
	f.decrements++
	return nil
}

type fakeIntakes struct {
	intake *model.IntakeAssessment
}

func (f *fakeIntakes) Create(ctx context.Context, intake *model.IntakeAssessment) error { return nil }

func (f *fakeIntakes) GetActiveByStudent(ctx context.Context, studentID uuid.UUID) (*model.IntakeAssessment, error) {
	if f.intake == nil {
		return nil, repository.ErrNotFound
	}
	return f.intake, nil
}

type fakeReschedules struct {
	byID map[uuid.UUID]*model.RescheduleRequest
}

func newFakeReschedules() *fakeReschedules {
	return &fakeReschedules{byID: make(map[uuid.UUID]*model.RescheduleRequest)}
}

func (f *fakeReschedules) Create(ctx context.Context, req *model.RescheduleRequest) error {
	req.ID = uuid.New()
	f.byID[req.ID] = req
	return nil
}

func (f *fakeReschedules) Get(ctx context.Context, id uuid.UUID) (*model.RescheduleRequest, error) {
	req, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return req, nil
}

func (f *fakeReschedules) Update(ctx context.Context, req *model.RescheduleRequest) error {
	f.byID[req.ID] = req
	return nil
}

func (f *fakeReschedules) ListPendingForTherapist(ctx context.Context, therapistID uuid.UUID) ([]*model.RescheduleRequest, error) {
	var out []*model.RescheduleRequest
	for _, req := range f.byID {
		if req.TherapistID == therapistID && req.Status == model.RescheduleStatusPending {
			out = append(out, req)
		}
	}
	return out, nil
}

type fakeAlternatives struct {
	current *model.AlternativeOptions
	deleted int64
}

func (f *fakeAlternatives) Create(ctx context.Context, opts *model.AlternativeOptions) error {
	opts.ID = uuid.New()
	f.current = opts
	return nil
}

func (f *fakeAlternatives) GetCurrentByStudent(ctx context.Context, studentID uuid.UUID) (*model.AlternativeOptions, error) {
	if f.current == nil || f.current.StudentID != studentID {
		return nil, repository.ErrNotFound
	}
	return f.current, nil
}

func (f *fakeAlternatives) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return f.deleted, nil
}

type fakeMeetings struct {
	created   int
	cancelled []string
	updated   []string
	updateErr error
}

func (f *fakeMeetings) CreateMeeting(ctx context.Context, appointmentID string, req *zoom.MeetingRequest) *model.MeetingInfo {
	f.created++
	return &model.MeetingInfo{
		MeetLink:   "https://meet.example/" + appointmentID,
		HostLink:   "https://meet.example/host/" + appointmentID,
		ProviderID: "prov-" + appointmentID,
		Platform:   "zoom",
	}
}

func (f *fakeMeetings) UpdateMeeting(ctx context.Context, providerID string, startTime time.Time, duration int, timezone string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, providerID)
	return nil
}

func (f *fakeMeetings) CancelMeeting(ctx context.Context, providerID string) error {
	f.cancelled = append(f.cancelled, providerID)
	return nil
}

type fakeFinder struct {
	candidates []*model.Therapist
}

func (f *fakeFinder) Candidates(ctx context.Context, concern string, gender model.GenderPreference, level model.CrisisLevel, excluded []uuid.UUID, limit int) ([]*model.Therapist, error) {
	return f.candidates, nil
}

type fakeNotifier struct {
	sent []*model.Notification
}

func (f *fakeNotifier) Notify(ctx context.Context, n *model.Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) typesSent() []string {
	out := make([]string, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.Type)
	}
	return out
}

type schedulerFixture struct {
	scheduler    *Scheduler
	appointments *fakeAppointments
	assignments  *fakeAssignments
	therapists   *fakeTherapists
	intakes      *fakeIntakes
	reschedules  *fakeReschedules
	alternatives *fakeAlternatives
	meetings     *fakeMeetings
	finder       *fakeFinder
	notifier     *fakeNotifier
	therapist    *model.Therapist
	studentID    uuid.UUID
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	therapist := &model.Therapist{
		UserID: uuid.New(),
		Name:   "Dr. Reyes",
		Availability: model.WeeklyAvailability{
			"tuesday": {{Start: "09:00", End: "12:00"}},
		},
		MaxStudents: 10,
	}
	therapist.ID = uuid.New()

	f := &schedulerFixture{
		appointments: newFakeAppointments(),
		assignments:  &fakeAssignments{},
		therapists:   newFakeTherapists(therapist),
		intakes:      &fakeIntakes{},
		reschedules:  newFakeReschedules(),
		alternatives: &fakeAlternatives{},
		meetings:     &fakeMeetings{},
		finder:       &fakeFinder{},
		notifier:     &fakeNotifier{},
		therapist:    therapist,
		studentID:    uuid.New(),
	}
	f.scheduler = NewScheduler(testSlotConfig(),
		f.appointments, f.assignments, f.therapists, f.intakes,
		f.reschedules, f.alternatives,
		f.meetings, f.finder, f.notifier,
		logger.NewLogger(nil), testMetrics)
	f.scheduler.now = func() time.Time { return slotTestNow }
	f.scheduler.slots.now = f.scheduler.now
	return f
}

func (f *schedulerFixture) activeAssignment() *model.Assignment {
	a := &model.Assignment{
		ID:          uuid.New(),
		StudentID:   f.studentID,
		TherapistID: f.therapist.ID,
		Status:      model.AssignmentActive,
	}
	f.assignments.active = a
	return a
}

func (f *schedulerFixture) confirmedAppointment() *model.Appointment {
	a := f.activeAssignment()
	apt := &model.Appointment{
		StudentID:       f.studentID,
		TherapistID:     f.therapist.ID,
		AssignmentID:    &a.ID,
		StartTime:       tuesdayAt(9, 0),
		DurationMinutes: model.DefaultSessionMinutes,
		Type:            "regular",
		Status:          model.AppointmentStatusConfirmed,
		CrisisLevel:     model.CrisisNone,
		MeetingInfo:     model.MeetingInfo{MeetLink: "https://meet.example/x", ProviderID: "prov-x", Platform: "zoom"},
	}
	apt.ID = uuid.New()
	f.appointments.byID[apt.ID] = apt
	return apt
}

func assertAppErrorCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestScheduleInitialBooksFirstSlot(t *testing.T) {
	f := newSchedulerFixture(t)
	f.activeAssignment()

	apt, err := f.scheduler.ScheduleInitial(context.Background(), f.studentID, f.therapist.ID, model.CrisisMedium)
	require.NoError(t, err)

	assert.Equal(t, tuesdayAt(9, 0), apt.StartTime)
	assert.Equal(t, "initial", apt.Type)
	assert.Equal(t, model.AppointmentStatusConfirmed, apt.Status)
	assert.Equal(t, model.DefaultSessionMinutes, apt.DurationMinutes)
	assert.True(t, apt.AutoScheduled)
	assert.NotNil(t, apt.AssignmentID)
	assert.NotEmpty(t, apt.MeetingInfo.MeetLink)

	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, f.studentID, f.notifier.sent[0].UserID)
	assert.Equal(t, f.therapist.UserID, f.notifier.sent[1].UserID)
	assert.Contains(t, f.notifier.typesSent(), model.NotificationAppointmentScheduled)
}

func TestScheduleInitialCriticalIsEmergency(t *testing.T) {
	f := newSchedulerFixture(t)
	f.activeAssignment()

	apt, err := f.scheduler.ScheduleInitial(context.Background(), f.studentID, f.therapist.ID, model.CrisisCritical)
	require.NoError(t, err)

	assert.Equal(t, "emergency", apt.Type)
	assert.Equal(t, slotTestNow.Add(30*time.Minute), apt.StartTime)
	assert.Equal(t, model.EmergencySessionMinutes, apt.DurationMinutes)
	assert.Equal(t, model.CrisisCritical, apt.CrisisLevel)

	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, model.PriorityCritical, f.notifier.sent[0].Priority)
	assert.Equal(t, model.NotificationEmergencySession, f.notifier.sent[0].Type)
}

func TestScheduleEmergencyBypassesExclusivity(t *testing.T) {
	f := newSchedulerFixture(t)
	f.activeAssignment()
	f.appointments.conflict = true

	_, err := f.scheduler.ScheduleEmergencySession(context.Background(), f.studentID, f.therapist.ID)
	assert.NoError(t, err)
}

func TestScheduleInitialNoOpenSlots(t *testing.T) {
	f := newSchedulerFixture(t)
	// Sunday-only availability is outside the two-day urgent horizon.
	f.therapist.Availability = model.WeeklyAvailability{
		"sunday": {{Start: "09:00", End: "10:00"}},
	}

	_, err := f.scheduler.ScheduleInitial(context.Background(), f.studentID, f.therapist.ID, model.CrisisHigh)
	assertAppErrorCode(t, err, apperrors.ErrUnavailable)
}

func TestBookSlot(t *testing.T) {
	f := newSchedulerFixture(t)
	f.activeAssignment()

	apt, err := f.scheduler.BookSlot(context.Background(), f.studentID, f.therapist.ID, tuesdayAt(9, 30))
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusPending, apt.Status)
	assert.Equal(t, "regular", apt.Type)
	assert.False(t, apt.AutoScheduled)
}

func TestBookSlotRejectsUnofferedTime(t *testing.T) {
	f := newSchedulerFixture(t)
	f.activeAssignment()

	_, err := f.scheduler.BookSlot(context.Background(), f.studentID, f.therapist.ID, tuesdayAt(8, 0))
	assertAppErrorCode(t, err, apperrors.ErrBadRequest)
}

func TestBookSlotWithoutAssignment(t *testing.T) {
	f := newSchedulerFixture(t)

	_, err := f.scheduler.BookSlot(context.Background(), f.studentID, f.therapist.ID, tuesdayAt(9, 0))
	assertAppErrorCode(t, err, apperrors.ErrForbidden)
}

func TestBookSlotDuplicateActiveAppointment(t *testing.T) {
	f := newSchedulerFixture(t)
	f.activeAssignment()
	f.appointments.conflict = true

	_, err := f.scheduler.BookSlot(context.Background(), f.studentID, f.therapist.ID, tuesdayAt(9, 0))
	assertAppErrorCode(t, err, apperrors.ErrConflict)
}

func TestBookSlotReplacesDistantAppointment(t *testing.T) {
	f := newSchedulerFixture(t)
	existing := f.confirmedAppointment()
	existing.StartTime = tuesdayAt(14, 0)
	f.appointments.enforceGuard = true

	apt, err := f.scheduler.BookSlot(context.Background(), f.studentID, f.therapist.ID, tuesdayAt(9, 0))
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusCancelled, existing.Status)
	require.NotNil(t, existing.CancelReason)
	assert.Equal(t, "superseded by a new booking", *existing.CancelReason)
	assert.Equal(t, model.AppointmentStatusPending, apt.Status)
	assert.Contains(t, f.meetings.cancelled, "prov-x")
}

func TestBookSlotKeepsImminentAppointment(t *testing.T) {
	f := newSchedulerFixture(t)
	existing := f.confirmedAppointment()
	f.appointments.enforceGuard = true

	_, err := f.scheduler.BookSlot(context.Background(), f.studentID, f.therapist.ID, tuesdayAt(10, 30))
	assertAppErrorCode(t, err, apperrors.ErrConflict)
	assert.Equal(t, model.AppointmentStatusConfirmed, existing.Status)
}

func TestBookSlotViaAlternativesReassigns(t *testing.T) {
	f := newSchedulerFixture(t)
	f.alternatives.current = &model.AlternativeOptions{
		StudentID: f.studentID,
		Alternatives: model.AlternativeList{
			{TherapistID: f.therapist.ID, TherapistName: f.therapist.Name},
		},
		ExpiresAt: slotTestNow.Add(time.Hour),
	}

	apt, err := f.scheduler.BookSlot(context.Background(), f.studentID, f.therapist.ID, tuesdayAt(9, 0))
	require.NoError(t, err)

	assert.Equal(t, 1, f.therapists.increments)
	require.Len(t, f.assignments.created, 1)
	assert.Equal(t, f.therapist.ID, f.assignments.created[0].TherapistID)
	assert.Equal(t, f.assignments.created[0].ID, *apt.AssignmentID)
}

func TestBookSlotViaAlternativesCapacityGone(t *testing.T) {
	f := newSchedulerFixture(t)
	f.therapists.claim = false
	f.alternatives.current = &model.AlternativeOptions{
		StudentID: f.studentID,
		Alternatives: model.AlternativeList{
			{TherapistID: f.therapist.ID},
		},
		ExpiresAt: slotTestNow.Add(time.Hour),
	}

	_, err := f.scheduler.BookSlot(context.Background(), f.studentID, f.therapist.ID, tuesdayAt(9, 0))
	assertAppErrorCode(t, err, apperrors.ErrConflict)
	assert.Empty(t, f.assignments.created)
}

func TestConfirm(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()
	apt.Status = model.AppointmentStatusPending

	confirmed, err := f.scheduler.Confirm(context.Background(), apt.ID, f.therapist.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, confirmed.Status)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, model.NotificationAppointmentConfirmed, f.notifier.sent[0].Type)
	assert.Equal(t, f.studentID, f.notifier.sent[0].UserID)
}

func TestConfirmWrongTherapist(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()
	apt.Status = model.AppointmentStatusPending

	_, err := f.scheduler.Confirm(context.Background(), apt.ID, uuid.New())
	assertAppErrorCode(t, err, apperrors.ErrForbidden)
}

func TestConfirmNotPending(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()

	_, err := f.scheduler.Confirm(context.Background(), apt.ID, f.therapist.ID)
	assertAppErrorCode(t, err, apperrors.ErrConflict)
}

func TestCancelReleasesCaseload(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()
	f.appointments.activeCount = 0

	cancelled, err := f.scheduler.Cancel(context.Background(), apt.ID, "student", "conflict with class")
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)
	assert.Equal(t, "student", *cancelled.CancelledBy)
	assert.Equal(t, "conflict with class", *cancelled.CancelReason)
	assert.True(t, cancelled.ZoomCancelled)
	assert.Equal(t, []string{"prov-x"}, f.meetings.cancelled)
	assert.Equal(t, 1, f.therapists.decrements)
}

func TestCancelKeepsCaseloadWhenSessionsRemain(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()
	f.appointments.activeCount = 1

	_, err := f.scheduler.Cancel(context.Background(), apt.ID, "therapist", "illness")
	require.NoError(t, err)
	assert.Equal(t, 0, f.therapists.decrements)
}

func TestCancelIdempotent(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()
	apt.Status = model.AppointmentStatusCancelled

	got, err := f.scheduler.Cancel(context.Background(), apt.ID, "student", "again")
	require.NoError(t, err)
	assert.Equal(t, apt.ID, got.ID)
	assert.Empty(t, f.meetings.cancelled)
	assert.Empty(t, f.notifier.sent)
}

func TestCancelCompletedConflicts(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()
	apt.Status = model.AppointmentStatusCompleted

	_, err := f.scheduler.Cancel(context.Background(), apt.ID, "student", "too late")
	assertAppErrorCode(t, err, apperrors.ErrConflict)
}

func TestReschedule(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()
	f.appointments.booked = []*model.Appointment{apt}

	moved, err := f.scheduler.Reschedule(context.Background(), apt.ID, tuesdayAt(10, 30))
	require.NoError(t, err)

	assert.Equal(t, tuesdayAt(10, 30), moved.StartTime)
	assert.Equal(t, model.AppointmentStatusConfirmed, moved.Status)
	assert.Equal(t, []string{"prov-x"}, f.meetings.updated)
	assert.Empty(t, f.meetings.cancelled)
}

func TestRescheduleRecreatesMeetingOnUpdateFailure(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()
	f.meetings.updateErr = errors.New("provider rejected update")

	moved, err := f.scheduler.Reschedule(context.Background(), apt.ID, tuesdayAt(10, 30))
	require.NoError(t, err)

	assert.Equal(t, []string{"prov-x"}, f.meetings.cancelled)
	assert.Equal(t, 1, f.meetings.created)
	assert.NotEqual(t, "prov-x", moved.MeetingInfo.ProviderID)
}

func TestReschedulePendingConflicts(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()
	apt.Status = model.AppointmentStatusPending

	_, err := f.scheduler.Reschedule(context.Background(), apt.ID, tuesdayAt(10, 30))
	assertAppErrorCode(t, err, apperrors.ErrConflict)
}

func TestCheckJoinStates(t *testing.T) {
	f := newSchedulerFixture(t)

	tests := []struct {
		name   string
		mutate func(apt *model.Appointment)
		status model.JoinStatus
		join   bool
	}{
		{"cancelled", func(apt *model.Appointment) {
			apt.Status = model.AppointmentStatusCancelled
		}, model.JoinStatusCancelled, false},
		{"completed", func(apt *model.Appointment) {
			apt.Status = model.AppointmentStatusCompleted
		}, model.JoinStatusCompleted, false},
		{"pending confirmation", func(apt *model.Appointment) {
			apt.Status = model.AppointmentStatusPending
		}, model.JoinStatusPending, false},
		{"too early", func(apt *model.Appointment) {
			apt.StartTime = slotTestNow.Add(30 * time.Minute)
		}, model.JoinStatusWaiting, false},
		{"too late", func(apt *model.Appointment) {
			apt.StartTime = slotTestNow.Add(-10 * time.Minute)
		}, model.JoinStatusExpired, false},
		{"in window", func(apt *model.Appointment) {
			apt.StartTime = slotTestNow.Add(2 * time.Minute)
		}, model.JoinStatusAvailable, true},
		{"in window without link", func(apt *model.Appointment) {
			apt.StartTime = slotTestNow.Add(2 * time.Minute)
			apt.MeetingInfo.MeetLink = ""
		}, model.JoinStatusWaiting, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apt := f.confirmedAppointment()
			tt.mutate(apt)

			decision, err := f.scheduler.CheckJoin(context.Background(), apt.ID, false)
			require.NoError(t, err)
			assert.Equal(t, tt.status, decision.Status)
			assert.Equal(t, tt.join, decision.CanJoin)
		})
	}
}

func TestCheckJoinWaitingMinutes(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()
	apt.StartTime = slotTestNow.Add(25 * time.Minute)

	decision, err := f.scheduler.CheckJoin(context.Background(), apt.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.JoinStatusWaiting, decision.Status)
	assert.Equal(t, 20, decision.MinutesToWait)
}

func TestCheckJoinRecordsJoin(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()
	apt.StartTime = slotTestNow

	decision, err := f.scheduler.CheckJoin(context.Background(), apt.ID, true)
	require.NoError(t, err)
	assert.True(t, decision.CanJoin)
	assert.Equal(t, apt.MeetingInfo.MeetLink, decision.MeetLink)
	assert.Equal(t, 1, f.appointments.joins)
}

func TestCheckJoinUrgencyFollowsCrisisLevel(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()
	apt.CrisisLevel = model.CrisisCritical
	apt.StartTime = slotTestNow

	decision, err := f.scheduler.CheckJoin(context.Background(), apt.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "high", decision.Urgency)
}

func TestExpireOverdue(t *testing.T) {
	f := newSchedulerFixture(t)
	f.appointments.expired = []uuid.UUID{uuid.New(), uuid.New()}

	n, err := f.scheduler.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, slotTestNow.Add(-2*time.Hour), f.appointments.expireCutoff)
}

func TestFileReschedule(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()

	request, err := f.scheduler.FileReschedule(context.Background(), f.studentID, &model.FileRescheduleRequest{
		AppointmentID:  apt.ID.String(),
		RequestedSlots: []time.Time{tuesdayAt(10, 0)},
		Message:        "class conflict",
	})
	require.NoError(t, err)

	assert.Equal(t, model.RescheduleStatusPending, request.Status)
	assert.Equal(t, f.therapist.ID, request.TherapistID)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, model.NotificationRescheduleRequested, f.notifier.sent[0].Type)
	assert.Equal(t, f.therapist.UserID, f.notifier.sent[0].UserID)
}

func TestFileRescheduleWrongStudent(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()

	_, err := f.scheduler.FileReschedule(context.Background(), uuid.New(), &model.FileRescheduleRequest{
		AppointmentID: apt.ID.String(),
	})
	assertAppErrorCode(t, err, apperrors.ErrForbidden)
}

func TestRescheduleRequestLifecycle(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()

	request, err := f.scheduler.FileReschedule(context.Background(), f.studentID, &model.FileRescheduleRequest{
		AppointmentID: apt.ID.String(),
		Message:       "need a later time",
	})
	require.NoError(t, err)

	suggested := []time.Time{tuesdayAt(10, 0), tuesdayAt(11, 0)}
	responded, err := f.scheduler.RespondReschedule(context.Background(), request.ID, f.therapist.ID, &model.RespondRescheduleRequest{
		SuggestedTimes: suggested,
		Response:       "either of these works",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RescheduleStatusResponded, responded.Status)

	// A handled request cannot be responded to again.
	_, err = f.scheduler.RespondReschedule(context.Background(), request.ID, f.therapist.ID, &model.RespondRescheduleRequest{})
	assertAppErrorCode(t, err, apperrors.ErrConflict)

	// Selecting a time outside the suggestions is rejected.
	_, err = f.scheduler.SelectRescheduleSlot(context.Background(), request.ID, f.studentID, tuesdayAt(9, 30))
	assertAppErrorCode(t, err, apperrors.ErrBadRequest)

	newApt, err := f.scheduler.SelectRescheduleSlot(context.Background(), request.ID, f.studentID, tuesdayAt(10, 0))
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusConfirmed, newApt.Status)
	assert.Equal(t, tuesdayAt(10, 0), newApt.StartTime)
	assert.Equal(t, f.therapist.ID, newApt.TherapistID)
	assert.Equal(t, model.RescheduleStatusFulfilled, request.Status)

	old, err := f.scheduler.Get(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, old.Status)
	// The therapist keeps the student, so the caseload stays put.
	assert.Equal(t, 0, f.therapists.decrements)
}

func TestRejectReschedule(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()

	request, err := f.scheduler.FileReschedule(context.Background(), f.studentID, &model.FileRescheduleRequest{
		AppointmentID: apt.ID.String(),
	})
	require.NoError(t, err)

	rejected, err := f.scheduler.RejectReschedule(context.Background(), request.ID, f.therapist.ID, "fully booked this week")
	require.NoError(t, err)
	assert.Equal(t, model.RescheduleStatusRejected, rejected.Status)

	types := f.notifier.typesSent()
	assert.Contains(t, types, model.NotificationRescheduleRejected)
}

func TestSuggestAlternatives(t *testing.T) {
	f := newSchedulerFixture(t)
	apt := f.confirmedAppointment()

	alt1 := &model.Therapist{
		UserID: uuid.New(),
		Name:   "Dr. Okafor",
		Availability: model.WeeklyAvailability{
			"tuesday": {{Start: "14:00", End: "16:00"}},
		},
	}
	alt1.ID = uuid.New()
	// A half-hour window yields no startable slot, so this candidate is
	// skipped.
	alt2 := &model.Therapist{UserID: uuid.New(), Name: "Dr. Hale",
		Availability: model.WeeklyAvailability{"sunday": {{Start: "09:00", End: "09:30"}}}}
	alt2.ID = uuid.New()
	f.finder.candidates = []*model.Therapist{alt1, alt2}

	opts, err := f.scheduler.SuggestAlternatives(context.Background(), apt.ID, "therapist on leave")
	require.NoError(t, err)

	require.Len(t, opts.Alternatives, 1)
	assert.Equal(t, alt1.ID, opts.Alternatives[0].TherapistID)
	assert.Equal(t, tuesdayAt(14, 0), opts.Alternatives[0].NextSlot)
	assert.Equal(t, slotTestNow.Add(24*time.Hour), opts.ExpiresAt)
	assert.Equal(t, apt.TherapistID, opts.OriginalTherapistID)

	// The original appointment is cancelled and the caseload released.
	assert.Equal(t, model.AppointmentStatusCancelled, apt.Status)
	assert.Equal(t, 1, f.therapists.decrements)

	last := f.notifier.sent[len(f.notifier.sent)-1]
	assert.Equal(t, model.NotificationAlternativesOffered, last.Type)
	assert.Equal(t, model.PriorityUrgent, last.Priority)
}

func TestCurrentAlternativesNotFound(t *testing.T) {
	f := newSchedulerFixture(t)

	_, err := f.scheduler.CurrentAlternatives(context.Background(), f.studentID)
	assertAppErrorCode(t, err, apperrors.ErrNotFound)
}

func TestValidateTime(t *testing.T) {
	f := newSchedulerFixture(t)

	v, err := f.scheduler.ValidateTime(context.Background(), f.therapist.ID, tuesdayAt(10, 0))
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Empty(t, v.Errors)
	assert.Empty(t, v.Warnings)
}

func TestValidateTimeShortNotice(t *testing.T) {
	f := newSchedulerFixture(t)

	v, err := f.scheduler.ValidateTime(context.Background(), f.therapist.ID, slotTestNow.Add(30*time.Minute))
	require.NoError(t, err)
	assert.False(t, v.Valid)
	require.Len(t, v.Errors, 1)
	assert.Contains(t, v.Errors[0], "notice")
}

func TestValidateTimeBeyondHorizon(t *testing.T) {
	f := newSchedulerFixture(t)

	v, err := f.scheduler.ValidateTime(context.Background(), f.therapist.ID, slotTestNow.AddDate(0, 0, 8))
	require.NoError(t, err)
	assert.False(t, v.Valid)
	require.Len(t, v.Errors, 1)
	assert.Contains(t, v.Errors[0], "days ahead")
}

func TestValidateTimeBufferConflict(t *testing.T) {
	f := newSchedulerFixture(t)
	f.appointments.booked = []*model.Appointment{{StartTime: tuesdayAt(10, 0)}}

	v, err := f.scheduler.ValidateTime(context.Background(), f.therapist.ID, tuesdayAt(10, 15))
	require.NoError(t, err)
	assert.False(t, v.Valid)
	require.Len(t, v.Errors, 1)
	assert.Contains(t, v.Errors[0], "conflicts")
}

func TestValidateTimeWarnings(t *testing.T) {
	f := newSchedulerFixture(t)

	// Saturday morning.
	v, err := f.scheduler.ValidateTime(context.Background(), f.therapist.ID,
		time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, v.Valid)
	require.Len(t, v.Warnings, 1)
	assert.Contains(t, v.Warnings[0], "weekend")

	// Weekday evening.
	v, err = f.scheduler.ValidateTime(context.Background(), f.therapist.ID, tuesdayAt(18, 0))
	require.NoError(t, err)
	assert.True(t, v.Valid)
	require.Len(t, v.Warnings, 1)
	assert.Contains(t, v.Warnings[0], "business hours")
}
