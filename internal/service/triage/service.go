package triage

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/repository"
	"github.com/campuswell/wellbeing-api/internal/service/crisis"
	apperrors "github.com/campuswell/wellbeing-api/pkg/errors"
	"github.com/campuswell/wellbeing-api/pkg/logger"
	"github.com/campuswell/wellbeing-api/pkg/metrics"
)

// maxReservationAttempts bounds the claim-retry loop when concurrent
// intakes race for the same therapist's last slot.
const maxReservationAttempts = 3

// specializationMap translates intake concerns into therapist
// specializations.
var specializationMap = map[string]string{
	"anxiety":         "anxiety",
	"depression":      "depression",
	"academic_stress": "academic_stress",
	"relationships":   "relationship_counseling",
	"trauma":          "trauma_therapy",
}

const fallbackSpecialization = "general_counseling"

// Notifier writes durable notifications.
type Notifier interface {
	Notify(ctx context.Context, n *model.Notification) error
}

// InitialScheduler books the first session after assignment.
// Implemented by the scheduling service.
type InitialScheduler interface {
	ScheduleInitial(ctx context.Context, studentID, therapistID uuid.UUID, level model.CrisisLevel) (*model.Appointment, error)
}

// IntakeOutcome is returned to the student after processing.
type IntakeOutcome struct {
	Intake      *model.IntakeAssessment `json:"intake"`
	Assignment  *model.Assignment       `json:"assignment,omitempty"`
	Therapist   *model.Therapist        `json:"therapist,omitempty"`
	Appointment *model.Appointment      `json:"appointment,omitempty"`
	CrisisLevel model.CrisisLevel       `json:"crisis_level"`
}

type Service struct {
	intakes     repository.IntakeRepository
	therapists  repository.TherapistRepository
	assignments repository.AssignmentRepository
	alerts      repository.CrisisAlertRepository
	classifier  *crisis.Classifier
	notifier    Notifier
	scheduler   InitialScheduler
	logger      *logger.Logger
	metrics     *metrics.Metrics
}

func NewService(
	intakes repository.IntakeRepository,
	therapists repository.TherapistRepository,
	assignments repository.AssignmentRepository,
	alerts repository.CrisisAlertRepository,
	classifier *crisis.Classifier,
	notifier Notifier,
	scheduler InitialScheduler,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		intakes:     intakes,
		therapists:  therapists,
		assignments: assignments,
		alerts:      alerts,
		classifier:  classifier,
		notifier:    notifier,
		scheduler:   scheduler,
		logger:      logger,
		metrics:     metrics,
	}
}

// SetScheduler wires the scheduling service after construction. The
// two services reference each other, so one side is attached late.
func (s *Service) SetScheduler(scheduler InitialScheduler) {
	s.scheduler = scheduler
}

// ProcessIntake classifies the intake, assigns a therapist, and books
// the first session. A failed booking never fails the intake: the
// student still gets their assignment.
func (s *Service) ProcessIntake(ctx context.Context, studentID uuid.UUID, req *model.SubmitIntakeRequest) (*IntakeOutcome, error) {
	level := s.classifier.ClassifyIntake(req)
	s.metrics.CrisisDetections.WithLabelValues(string(level)).Inc()

	gender := model.GenderPreference(req.TherapistGender)
	if gender == "" {
		gender = model.GenderNoPreference
	}

	intake := &model.IntakeAssessment{
		StudentID:             studentID,
		PrimaryConcern:        req.PrimaryConcern,
		Description:           req.Description,
		Severity:              req.Severity,
		TherapistGender:       gender,
		CrisisIndicators:      req.CrisisIndicators,
		EmergencyContactName:  req.EmergencyContactName,
		EmergencyContactPhone: req.EmergencyContactPhone,
		CrisisLevel:           level,
	}
	if err := s.intakes.Create(ctx, intake); err != nil {
		return nil, fmt.Errorf("failed to save intake: %w", err)
	}

	outcome := &IntakeOutcome{Intake: intake, CrisisLevel: level}

	therapist, tier, err := s.assignTherapist(ctx, studentID, req.PrimaryConcern, gender, level)
	if err != nil {
		return nil, err
	}
	if therapist == nil {
		// No capacity anywhere. The intake is recorded for manual triage.
		s.logger.Warn("no therapist available for intake",
			"student_id", studentID.String(), "crisis_level", string(level))
		return outcome, nil
	}
	s.metrics.TriageAssignments.WithLabelValues(tier).Inc()

	assignment := &model.Assignment{
		StudentID:    studentID,
		TherapistID:  therapist.ID,
		AutoAssigned: true,
	}
	if err := s.assignments.CreateActive(ctx, assignment); err != nil {
		// Release the slot claimed for this assignment.
		if decErr := s.therapists.DecrementCaseload(ctx, therapist.ID); decErr != nil {
			s.logger.Error(decErr, "failed to release claimed caseload slot",
				"therapist_id", therapist.ID.String())
		}
		return nil, fmt.Errorf("failed to create assignment: %w", err)
	}
	outcome.Assignment = assignment
	outcome.Therapist = therapist

	if level.AtLeast(model.CrisisHigh) {
		s.raiseCrisisAlert(ctx, studentID, therapist, level)
	}

	s.notifyAssignment(ctx, studentID, therapist)

	if s.scheduler != nil {
		apt, err := s.scheduler.ScheduleInitial(ctx, studentID, therapist.ID, level)
		if err != nil {
			s.logger.Error(err, "failed to auto-schedule initial session",
				"student_id", studentID.String())
		} else {
			outcome.Appointment = apt
		}
	}

	return outcome, nil
}

// assignTherapist walks the relaxation ladder and claims a caseload slot
// with a conditional increment, retrying against concurrent claims.
func (s *Service) assignTherapist(ctx context.Context, studentID uuid.UUID, concern string, gender model.GenderPreference, level model.CrisisLevel) (*model.Therapist, string, error) {
	specialization := specializationMap[concern]
	if specialization == "" {
		specialization = fallbackSpecialization
	}

	var excluded []uuid.UUID
	for attempt := 0; attempt < maxReservationAttempts; attempt++ {
		candidate, tier, err := s.findCandidate(ctx, specialization, gender, level, excluded)
		if err != nil {
			return nil, "", err
		}
		if candidate == nil {
			return nil, "", nil
		}

		claimed, err := s.therapists.IncrementCaseload(ctx, candidate.ID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to claim caseload slot: %w", err)
		}
		if claimed {
			candidate.CurrentStudents++
			return candidate, tier, nil
		}

		// Lost the race for the last slot; try the next candidate.
		excluded = append(excluded, candidate.ID)
	}

	return nil, "", apperrors.Conflict("therapist capacity changed, please retry", nil)
}

// findCandidate applies the ladder: exact specialization and gender
// first, then any specialization, then any gender.
func (s *Service) findCandidate(ctx context.Context, specialization string, gender model.GenderPreference, level model.CrisisLevel, excluded []uuid.UUID) (*model.Therapist, string, error) {
	genderFilter := ""
	if gender != model.GenderNoPreference && gender != "" {
		genderFilter = string(gender)
	}

	ladder := []struct {
		tier   string
		filter model.TherapistFilter
	}{
		{"specialized", model.TherapistFilter{
			Status: model.UserStatusActive, HasCapacity: true,
			Specialization: specialization, Gender: genderFilter, ExcludeIDs: excluded,
		}},
		{"any_specialization", model.TherapistFilter{
			Status: model.UserStatusActive, HasCapacity: true,
			Gender: genderFilter, ExcludeIDs: excluded,
		}},
		{"any_gender", model.TherapistFilter{
			Status: model.UserStatusActive, HasCapacity: true,
			ExcludeIDs: excluded,
		}},
	}

	for _, rung := range ladder {
		candidates, err := s.therapists.List(ctx, &rung.filter)
		if err != nil {
			return nil, "", fmt.Errorf("failed to list therapists: %w", err)
		}
		if len(candidates) == 0 {
			continue
		}
		return pickBest(candidates, level), rung.tier, nil
	}

	return nil, "", nil
}

// pickBest returns the top-ranked candidate.
func pickBest(candidates []*model.Therapist, level model.CrisisLevel) *model.Therapist {
	rankCandidates(candidates, level)
	return candidates[0]
}

// rankCandidates orders candidates by crisis capability (for high-tier
// intakes), then caseload, rating, and id for a stable result.
func rankCandidates(candidates []*model.Therapist, level model.CrisisLevel) {
	urgent := level.AtLeast(model.CrisisHigh)

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if urgent {
			if a.CrisisSpecialist != b.CrisisSpecialist {
				return a.CrisisSpecialist
			}
			if a.EmergencyHours != b.EmergencyHours {
				return a.EmergencyHours
			}
		}
		if a.CurrentStudents != b.CurrentStudents {
			return a.CurrentStudents < b.CurrentStudents
		}
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		return a.ID.String() < b.ID.String()
	})
}

func (s *Service) raiseCrisisAlert(ctx context.Context, studentID uuid.UUID, therapist *model.Therapist, level model.CrisisLevel) {
	alert := &model.CrisisAlert{
		StudentID:    studentID,
		TherapistID:  &therapist.ID,
		CrisisLevel:  level,
		Status:       model.CrisisAlertAutoEscalated,
		AutoDetected: true,
	}
	if err := s.alerts.Escalate(ctx, alert); err != nil {
		s.logger.Error(err, "failed to raise crisis alert",
			"student_id", studentID.String())
		return
	}

	if err := s.notifier.Notify(ctx, &model.Notification{
		UserID:    therapist.UserID,
		Type:      model.NotificationCrisisAlertUrgent,
		Message:   "High-risk student requires immediate attention.",
		RelatedID: &alert.ID,
		Priority:  model.PriorityCritical,
	}); err != nil {
		s.logger.Error(err, "failed to notify therapist of crisis intake",
			"therapist_id", therapist.ID.String())
	}
}

func (s *Service) notifyAssignment(ctx context.Context, studentID uuid.UUID, therapist *model.Therapist) {
	if err := s.notifier.Notify(ctx, &model.Notification{
		UserID:   studentID,
		Type:     model.NotificationTherapistAssigned,
		Message:  fmt.Sprintf("You have been matched with %s.", therapist.Name),
		Priority: model.PriorityNormal,
	}); err != nil {
		s.logger.Error(err, "failed to notify student of assignment",
			"student_id", studentID.String())
	}

	if err := s.notifier.Notify(ctx, &model.Notification{
		UserID:   therapist.UserID,
		Type:     model.NotificationTherapistAssigned,
		Message:  "A new student has been assigned to your caseload.",
		Priority: model.PriorityNormal,
	}); err != nil {
		s.logger.Error(err, "failed to notify therapist of assignment",
			"therapist_id", therapist.ID.String())
	}
}

// Candidates ranks available therapists for a concern without claiming
// caseload capacity. The relaxation ladder matches assignment; the first
// non-empty rung supplies the pool. Used when offering a student
// alternative therapists.
func (s *Service) Candidates(ctx context.Context, concern string, gender model.GenderPreference, level model.CrisisLevel, excluded []uuid.UUID, limit int) ([]*model.Therapist, error) {
	specialization, ok := specializationMap[concern]
	if !ok {
		specialization = fallbackSpecialization
	}

	genderFilter := ""
	if gender != model.GenderNoPreference && gender != "" {
		genderFilter = string(gender)
	}

	filters := []model.TherapistFilter{
		{Status: model.UserStatusActive, HasCapacity: true, Specialization: specialization, Gender: genderFilter, ExcludeIDs: excluded},
		{Status: model.UserStatusActive, HasCapacity: true, Gender: genderFilter, ExcludeIDs: excluded},
		{Status: model.UserStatusActive, HasCapacity: true, ExcludeIDs: excluded},
	}

	for i := range filters {
		candidates, err := s.therapists.List(ctx, &filters[i])
		if err != nil {
			return nil, fmt.Errorf("failed to list therapists: %w", err)
		}
		if len(candidates) == 0 {
			continue
		}
		rankCandidates(candidates, level)
		if len(candidates) > limit {
			candidates = candidates[:limit]
		}
		return candidates, nil
	}

	return nil, nil
}
