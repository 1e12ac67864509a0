package appointment

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/campuswell/wellbeing-api/internal/handler"
	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/repository"
	"github.com/campuswell/wellbeing-api/internal/service/scheduling"
	apperrors "github.com/campuswell/wellbeing-api/pkg/errors"
	"github.com/campuswell/wellbeing-api/pkg/httputil"
)

type Handler struct {
	scheduler  *scheduling.Scheduler
	therapists repository.TherapistRepository
}

func NewHandler(scheduler *scheduling.Scheduler, therapists repository.TherapistRepository) *Handler {
	return &Handler{scheduler: scheduler, therapists: therapists}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/therapists/:id/slots", h.Slots)

	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.Book)
		appointments.POST("/validate", h.ValidateTime)
		appointments.GET("", h.List)
		appointments.GET("/:id", h.Get)
		appointments.POST("/:id/confirm", h.Confirm)
		appointments.POST("/:id/cancel", h.Cancel)
		appointments.POST("/:id/reschedule", h.Reschedule)
		appointments.POST("/:id/complete", h.Complete)
		appointments.GET("/:id/join", h.Join)
	}

	reschedules := r.Group("/reschedule-requests")
	{
		reschedules.POST("", h.FileReschedule)
		reschedules.GET("/pending", h.PendingReschedules)
		reschedules.POST("/:id/respond", h.RespondReschedule)
		reschedules.POST("/:id/reject", h.RejectReschedule)
		reschedules.POST("/:id/select", h.SelectRescheduleSlot)
	}

	r.GET("/alternatives", h.Alternatives)
}

// RegisterAdminRoutes exposes staff-only scheduling operations.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/appointments/:id/alternatives", h.SuggestAlternatives)
}

// Slots lists the therapist's next open instants.
func (h *Handler) Slots(c *gin.Context) {
	therapistID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid therapist id", err))
		return
	}
	level := model.CrisisLevel(c.DefaultQuery("crisis_level", string(model.CrisisNone)))

	slots, err := h.scheduler.AvailableSlots(c.Request.Context(), therapistID, level)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"slots": slots})
}

// Book creates a pending appointment in a student-selected slot.
func (h *Handler) Book(c *gin.Context) {
	var req model.BookSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	if err := handler.Validate(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}
	therapistID, err := uuid.Parse(req.TherapistID)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid therapist id", err))
		return
	}

	apt, err := h.scheduler.BookSlot(c.Request.Context(), handler.UserID(c), therapistID, req.StartTime)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, apt)
}

// ValidateTime pre-checks a proposed start time without booking it.
func (h *Handler) ValidateTime(c *gin.Context) {
	var req model.BookSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	if err := handler.Validate(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}
	therapistID, err := uuid.Parse(req.TherapistID)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid therapist id", err))
		return
	}

	v, err := h.scheduler.ValidateTime(c.Request.Context(), therapistID, req.StartTime)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, v)
}

// List returns the caller's appointment history.
func (h *Handler) List(c *gin.Context) {
	appointments, err := h.scheduler.ListByStudent(c.Request.Context(), handler.UserID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appointments)
}

func (h *Handler) Get(c *gin.Context) {
	apt, ok := h.loadAuthorized(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

// Confirm lets the assigned therapist approve a pending appointment.
func (h *Handler) Confirm(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid appointment id", err))
		return
	}
	therapist, ok := h.callerTherapist(c)
	if !ok {
		return
	}

	apt, err := h.scheduler.Confirm(c.Request.Context(), id, therapist.ID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

// Cancel cancels the appointment on behalf of the caller.
func (h *Handler) Cancel(c *gin.Context) {
	apt, ok := h.loadAuthorized(c)
	if !ok {
		return
	}

	var req model.CancelAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	if err := handler.Validate(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	cancelledBy := string(handler.Role(c))
	cancelled, err := h.scheduler.Cancel(c.Request.Context(), apt.ID, cancelledBy, req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, cancelled)
}

// Reschedule moves a confirmed appointment directly. Staff flow; the
// student-initiated flow goes through reschedule requests.
func (h *Handler) Reschedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid appointment id", err))
		return
	}
	if role := handler.Role(c); role != model.RoleTherapist && role != model.RoleAdmin {
		httputil.RespondWithError(c, apperrors.Forbidden("only staff can reschedule directly"))
		return
	}

	var req model.RescheduleAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	if err := handler.Validate(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	apt, err := h.scheduler.Reschedule(c.Request.Context(), id, req.NewStartTime)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

// Complete marks a session finished.
func (h *Handler) Complete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid appointment id", err))
		return
	}
	if _, ok := h.callerTherapist(c); !ok {
		return
	}

	apt, err := h.scheduler.Complete(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

// Join evaluates the caller's join attempt against the session window.
func (h *Handler) Join(c *gin.Context) {
	apt, ok := h.loadAuthorized(c)
	if !ok {
		return
	}

	host := handler.Role(c) == model.RoleTherapist
	decision, err := h.scheduler.CheckJoin(c.Request.Context(), apt.ID, host)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, decision)
}

// FileReschedule opens a student reschedule request.
func (h *Handler) FileReschedule(c *gin.Context) {
	var req model.FileRescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	if err := handler.Validate(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	request, err := h.scheduler.FileReschedule(c.Request.Context(), handler.UserID(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, request)
}

// PendingReschedules lists requests awaiting the caller therapist.
func (h *Handler) PendingReschedules(c *gin.Context) {
	therapist, ok := h.callerTherapist(c)
	if !ok {
		return
	}

	requests, err := h.scheduler.PendingReschedules(c.Request.Context(), therapist.ID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, requests)
}

func (h *Handler) RespondReschedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request id", err))
		return
	}
	therapist, ok := h.callerTherapist(c)
	if !ok {
		return
	}

	var req model.RespondRescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	if err := handler.Validate(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	request, err := h.scheduler.RespondReschedule(c.Request.Context(), id, therapist.ID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, request)
}

func (h *Handler) RejectReschedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request id", err))
		return
	}
	therapist, ok := h.callerTherapist(c)
	if !ok {
		return
	}

	var req struct {
		Response string `json:"response" validate:"max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	request, err := h.scheduler.RejectReschedule(c.Request.Context(), id, therapist.ID, req.Response)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, request)
}

func (h *Handler) SelectRescheduleSlot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request id", err))
		return
	}

	var req model.SelectRescheduleSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	if err := handler.Validate(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	apt, err := h.scheduler.SelectRescheduleSlot(c.Request.Context(), id, handler.UserID(c), req.StartTime)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, apt)
}

// Alternatives returns the student's unexpired alternative-therapist
// offer.
func (h *Handler) Alternatives(c *gin.Context) {
	opts, err := h.scheduler.CurrentAlternatives(c.Request.Context(), handler.UserID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, opts)
}

// SuggestAlternatives cancels the appointment and offers replacements.
func (h *Handler) SuggestAlternatives(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid appointment id", err))
		return
	}

	var req struct {
		Reason string `json:"reason" validate:"required,max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	if err := handler.Validate(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	opts, err := h.scheduler.SuggestAlternatives(c.Request.Context(), id, req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, opts)
}

// loadAuthorized fetches the appointment and verifies the caller is a
// participant or staff.
func (h *Handler) loadAuthorized(c *gin.Context) (*model.Appointment, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid appointment id", err))
		return nil, false
	}

	apt, err := h.scheduler.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return nil, false
	}

	callerID := handler.UserID(c)
	switch handler.Role(c) {
	case model.RoleAdmin:
		return apt, true
	case model.RoleStudent:
		if apt.StudentID == callerID {
			return apt, true
		}
	case model.RoleTherapist:
		if therapist, err := h.therapists.GetByUserID(c.Request.Context(), callerID); err == nil && apt.TherapistID == therapist.ID {
			return apt, true
		}
	}
	httputil.RespondWithError(c, apperrors.Forbidden("not a participant in this appointment"))
	return nil, false
}

// callerTherapist resolves the authenticated therapist's record.
func (h *Handler) callerTherapist(c *gin.Context) (*model.Therapist, bool) {
	if handler.Role(c) != model.RoleTherapist {
		httputil.RespondWithError(c, apperrors.Forbidden("therapist role required"))
		return nil, false
	}
	therapist, err := h.therapists.GetByUserID(c.Request.Context(), handler.UserID(c))
	if err != nil {
		httputil.RespondWithError(c, apperrors.Forbidden("no therapist profile for this account"))
		return nil, false
	}
	return therapist, true
}
