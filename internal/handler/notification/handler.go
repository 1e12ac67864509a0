package notification

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/campuswell/wellbeing-api/internal/handler"
	"github.com/campuswell/wellbeing-api/internal/service/notification"
	apperrors "github.com/campuswell/wellbeing-api/pkg/errors"
	"github.com/campuswell/wellbeing-api/pkg/httputil"
)

type Handler struct {
	svc notification.Service
}

func NewHandler(svc notification.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.List)
		notifications.POST("/:id/read", h.MarkRead)
		notifications.POST("/read-all", h.MarkAllRead)
	}
}

// List returns the caller's inbox, newest first.
func (h *Handler) List(c *gin.Context) {
	unreadOnly := c.Query("unread") == "true"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	notifications, err := h.svc.ListForUser(c.Request.Context(), handler.UserID(c), unreadOnly, limit)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, notifications)
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid notification id", err))
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), id, handler.UserID(c)); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, nil)
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	if err := h.svc.MarkAllRead(c.Request.Context(), handler.UserID(c)); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, nil)
}
