package validator

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"printstudio/internal/repository"
	"printstudio/internal/usecase"
)

const minPasswordLength = 8

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type authValidator struct {
	users repository.UserRepository
}

// Usecaseは interface を依存注入
func NewAuthValidator(users repository.UserRepository) usecase.AuthValidator {
	return &authValidator{users: users}
}

// サインアップの入力を検証
func (v *authValidator) ValidateRegister(ctx context.Context, email string, password string) error {
	fields := credentialFields(email, password)
	if len(password) > 0 && len(password) < minPasswordLength {
		fields["password"] = "must be at least 8 characters"
	}
	if len(fields) > 0 {
		return usecase.NewValidationError("invalid input", fields)
	}

	// email重複チェック（DBが必要）
	u, err := v.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return usecase.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if u != nil {
		return usecase.NewHTTPError(http.StatusConflict, "email already used")
	}

	return nil
}

// ログインの入力を検証
func (v *authValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	if fields := credentialFields(email, password); len(fields) > 0 {
		return usecase.NewValidationError("invalid input", fields)
	}
	return nil
}

func credentialFields(email, password string) map[string]string {
	fields := map[string]string{}
	email = strings.TrimSpace(email)

	switch {
	case email == "":
		fields["email"] = "required"
	case !emailPattern.MatchString(email):
		fields["email"] = "invalid format"
	}
	if password == "" {
		fields["password"] = "required"
	}
	return fields
}
