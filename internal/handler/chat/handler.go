package chat

import (
	"github.com/gin-gonic/gin"

	"github.com/campuswell/wellbeing-api/internal/handler"
	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/internal/service/chat"
	apperrors "github.com/campuswell/wellbeing-api/pkg/errors"
	"github.com/campuswell/wellbeing-api/pkg/httputil"
)

type Handler struct {
	svc *chat.Service
}

func NewHandler(svc *chat.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chat/exchanges", h.Record)
}

type recordRequest struct {
	Prompt        string  `json:"prompt" validate:"required,max=5000"`
	ResponseText  string  `json:"response_text"`
	TokensUsed    int     `json:"tokens_used" validate:"min=0"`
	EstimatedCost float64 `json:"estimated_cost" validate:"min=0"`
}

type recordResponse struct {
	Exchange       *model.ChatExchange `json:"exchange"`
	CrisisResponse string              `json:"crisis_response,omitempty"`
}

// Record persists one chatbot turn and screens the prompt for crisis
// language.
func (h *Handler) Record(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	if err := handler.Validate(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	result, err := h.svc.RecordExchange(c.Request.Context(), &model.ChatExchange{
		UserID:        handler.UserID(c),
		Prompt:        req.Prompt,
		ResponseText:  req.ResponseText,
		TokensUsed:    req.TokensUsed,
		EstimatedCost: req.EstimatedCost,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, recordResponse{
		Exchange:       result.Exchange,
		CrisisResponse: result.CrisisResponse,
	})
}
