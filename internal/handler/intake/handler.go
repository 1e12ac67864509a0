package intake

import (
	"github.com/gin-gonic/gin"

	"github.com/campuswell/wellbeing-api/internal/handler"
	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/service/triage"
	apperrors "github.com/campuswell/wellbeing-api/pkg/errors"
	"github.com/campuswell/wellbeing-api/pkg/httputil"
)

type Handler struct {
	triage *triage.Service
}

func NewHandler(triage *triage.Service) *Handler {
	return &Handler{triage: triage}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/intakes", h.Submit)
}

// Submit processes a student's intake assessment: crisis screening,
// therapist assignment, and first-session scheduling.
func (h *Handler) Submit(c *gin.Context) {
	var req model.SubmitIntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	if err := handler.Validate(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	outcome, err := h.triage.ProcessIntake(c.Request.Context(), handler.UserID(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, outcome)
}
