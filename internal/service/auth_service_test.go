package service

import (
	"context"
	"recall_edu_backend/internal/config"
	"recall_edu_backend/internal/model"
	"recall_edu_backend/internal/repository"
	"recall_edu_backend/internal/testutil"
	"recall_edu_backend/internal/util"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_Login(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewAuthService(repository.NewUserRepository(db), &config.JWTConfig{Secret: "auth-secret", ExpireTime: time.Hour})
	ctx := context.Background()

	hashed, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	student := &model.User{Name: "s", Email: "s@example.com", Role: model.Student, Password: hashed}
	require.NoError(t, db.Create(student).Error)
	disabled := &model.User{Name: "d", Email: "d@example.com", Role: model.Student, Password: hashed, Disabled: true}
	require.NoError(t, db.Create(disabled).Error)

	token, user, err := svc.Login(ctx, "s@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, student.ID, user.ID)

	claims, err := util.ParseAccessToken(token, "auth-secret")
	require.NoError(t, err)
	assert.Equal(t, student.ID, claims.UserID)
	assert.Equal(t, model.Student, claims.Role)
	assert.Equal(t, "s", claims.Name)

	cases := []struct {
		name, email, password string
	}{
		{"wrong password", "s@example.com", "nope"},
		{"unknown email", "ghost@example.com", "s3cret-pass"},
		{"disabled", "d@example.com", "s3cret-pass"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Login(ctx, tc.email, tc.password)
			assert.ErrorIs(t, err, util.ErrInvalidCredentials)
		})
	}
}
