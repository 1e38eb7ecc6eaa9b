package validator

import (
	"context"
	"errors"
	"testing"
	"time"

	"printstudio/internal/domain/model"
	"printstudio/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUsers struct {
	byEmail map[string]*model.User
	err     error
}

func (s stubUsers) Create(ctx context.Context, user *model.User) error { return nil }
func (s stubUsers) FindByID(ctx context.Context, userID int64) (*model.User, error) {
	return nil, nil
}
func (s stubUsers) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byEmail[email], nil
}
func (s stubUsers) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error { return nil }

func TestValidateRegister(t *testing.T) {
	v := NewAuthValidator(stubUsers{byEmail: map[string]*model.User{
		"taken@example.com": {ID: 1, Email: "taken@example.com"},
	}})

	t.Run("ok", func(t *testing.T) {
		require.NoError(t, v.ValidateRegister(context.Background(), "new@example.com", "password123"))
	})

	t.Run("field errors", func(t *testing.T) {
		err := v.ValidateRegister(context.Background(), "not-an-email", "short")
		he, ok := usecase.AsHTTPError(err)
		require.True(t, ok)
		assert.Equal(t, 400, he.Status)
		assert.True(t, errors.Is(err, usecase.ErrValidation))
		assert.Equal(t, "invalid format", he.Fields["email"])
		assert.Contains(t, he.Fields, "password")
	})

	t.Run("email already used", func(t *testing.T) {
		err := v.ValidateRegister(context.Background(), "taken@example.com", "password123")
		assert.True(t, errors.Is(err, usecase.ErrConflict))
	})

	t.Run("db error", func(t *testing.T) {
		v := NewAuthValidator(stubUsers{err: errors.New("boom")})
		err := v.ValidateRegister(context.Background(), "new@example.com", "password123")
		assert.True(t, errors.Is(err, usecase.ErrInternal))
	})
}

func TestValidateLogin(t *testing.T) {
	v := NewAuthValidator(stubUsers{})

	assert.NoError(t, v.ValidateLogin(context.Background(), "a@example.com", "x"))

	err := v.ValidateLogin(context.Background(), "", "")
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, "required", he.Fields["email"])
	assert.Equal(t, "required", he.Fields["password"])
}
