package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/campuswell/wellbeing-api/internal/model"
)

// Context keys set by the auth middleware.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

var validate = validator.New()

// Validate checks a bound request body against its validation tags.
func Validate(v interface{}) error {
	return validate.Struct(v)
}

// UserID returns the authenticated user's id from the request context.
func UserID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ContextUserID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// Role returns the authenticated user's role from the request context.
func Role(c *gin.Context) model.Role {
	if v, ok := c.Get(ContextRole); ok {
		if role, ok := v.(model.Role); ok {
			return role
		}
	}
	return ""
}
