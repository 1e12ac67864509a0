package message

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/campuswell/wellbeing-api/internal/handler"
	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/service/moderation"
	apperrors "github.com/campuswell/wellbeing-api/pkg/errors"
	"github.com/campuswell/wellbeing-api/pkg/httputil"
)

type Handler struct {
	moderation *moderation.Service
}

func NewHandler(moderation *moderation.Service) *Handler {
	return &Handler{moderation: moderation}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/messages", h.Send)
	r.GET("/messages", h.History)
}

// RegisterAdminRoutes registers moderation reporting for staff.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/moderation/report", h.Report)
}

type sendRequest struct {
	StudentID string `json:"student_id" validate:"omitempty,uuid"`
	Body      string `json:"body" validate:"required"`
}

// Send moderates and delivers a message within the caller's active
// assignment. Students omit student_id; therapists address a student.
func (h *Handler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	if err := handler.Validate(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	callerID := handler.UserID(c)
	role := handler.Role(c)

	studentID := callerID
	if role == model.RoleTherapist {
		parsed, err := uuid.Parse(req.StudentID)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("student_id is required for therapists", err))
			return
		}
		studentID = parsed
	}

	result, err := h.moderation.Send(c.Request.Context(), role, callerID, studentID, req.Body)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}

// History returns the conversation for the caller's assignment and
// marks the other party's messages read.
func (h *Handler) History(c *gin.Context) {
	callerID := handler.UserID(c)
	role := handler.Role(c)

	studentID := callerID
	if role == model.RoleTherapist {
		parsed, err := uuid.Parse(c.Query("student_id"))
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("student_id is required for therapists", err))
			return
		}
		studentID = parsed
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	messages, err := h.moderation.History(c.Request.Context(), callerID, role, studentID, limit)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, messages)
}

// Report aggregates moderation outcomes over a trailing window.
func (h *Handler) Report(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if err != nil || hours <= 0 {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid hours parameter", err))
		return
	}

	report, err := h.moderation.Report(c.Request.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, report)
}
