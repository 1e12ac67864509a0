package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuswell/wellbeing-api/internal/model"
)

func testUser() *model.User {
	return &model.User{
		Base:   model.Base{ID: uuid.New()},
		Email:  "student@campus.edu",
		Role:   model.RoleStudent,
		Status: model.UserStatusActive,
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewJWTService("test-secret", 24)
	user := testUser()

	token, err := svc.GenerateToken(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, model.RoleStudent, claims.Role)
	assert.Equal(t, user.ID.String(), claims.Subject)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a", 24).GenerateToken(testUser())
	require.NoError(t, err)

	_, err = NewJWTService("secret-b", 24).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenExpired(t *testing.T) {
	token, err := NewJWTService("test-secret", -1).GenerateToken(testUser())
	require.NoError(t, err)

	_, err = NewJWTService("test-secret", 24).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenGarbage(t *testing.T) {
	_, err := NewJWTService("test-secret", 24).ValidateToken("not.a.token")
	assert.Error(t, err)
}
