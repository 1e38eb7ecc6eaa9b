package usecase

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"printstudio/internal/config"
	"printstudio/internal/domain/model"
	"printstudio/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// usecaseがValidatorInterfaceに依存する約束
type AuthValidator interface {
	ValidateRegister(ctx context.Context, email string, password string) error
	ValidateLogin(ctx context.Context, email string, password string) error
}

// 認証済みの利用者（middlewareがcontextに入れる）
type Principal struct {
	UserID    int64
	Role      model.Role
	SessionID string
}

func (p Principal) IsAdmin() bool {
	return p.Role == model.RoleAdmin
}

// middlewareが依存する認証の窓口
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (Principal, error)
}

type UserDTO struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

type JwtAccessTokenDTO struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int       `json:"expires_in"`
	SessionID   string    `json:"session_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type AuthRegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginResponse struct {
	User  UserDTO           `json:"user"`
	Token JwtAccessTokenDTO `json:"token"`
}

type accessClaims struct {
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type AuthUsecase struct {
	cfg       config.Config
	users     repository.UserRepository
	sessions  repository.SessionStore
	validator AuthValidator
	ids       IDGenerator
	clock     Clock
}

func NewAuthUsecase(
	cfg config.Config,
	users repository.UserRepository,
	sessions repository.SessionStore,
	validator AuthValidator,
	ids IDGenerator,
	clock Clock,
) *AuthUsecase {
	return &AuthUsecase{
		cfg:       cfg,
		users:     users,
		sessions:  sessions,
		validator: validator,
		ids:       ids,
		clock:     clock,
	}
}

func (u *AuthUsecase) Register(ctx context.Context, req AuthRegisterRequest) (UserDTO, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := u.validator.ValidateRegister(ctx, req.Email, req.Password); err != nil {
		return UserDTO{}, err
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	pwHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return UserDTO{}, internalError()
	}

	user := &model.User{
		Email:        req.Email,
		PasswordHash: string(pwHash),
		Role:         model.RoleUser,
		IsActive:     true,
	}

	if err := u.users.Create(ctx, user); err != nil {
		// 検証後に同じemailが入った場合
		return UserDTO{}, NewHTTPError(http.StatusConflict, "email already used")
	}

	return toUserDTO(user), nil
}

// ログイン。セッションをRedisに作ってからJWTを発行する。
func (u *AuthUsecase) Login(ctx context.Context, req AuthLoginRequest, userAgent string) (AuthLoginResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := u.validator.ValidateLogin(ctx, req.Email, req.Password); err != nil {
		return AuthLoginResponse{}, err
	}

	user, err := u.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return AuthLoginResponse{}, internalError()
	}
	if user == nil {
		return AuthLoginResponse{}, NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	//停止ユーザーはログイン不可
	if !user.IsActive {
		return AuthLoginResponse{}, NewHTTPError(http.StatusForbidden, "account disabled")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return AuthLoginResponse{}, NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	now := u.clock.Now()
	_ = u.users.TouchLastLogin(ctx, user.ID, now)

	s := model.Session{
		ID:        u.ids.NewID(),
		UserID:    user.ID,
		Role:      user.Role,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(u.cfg.SessionTTL),
	}
	if err := u.sessions.Save(ctx, s, u.cfg.SessionTTL); err != nil {
		return AuthLoginResponse{}, internalError()
	}

	token, exp, err := u.issueAccessToken(user, s.ID, now)
	if err != nil {
		return AuthLoginResponse{}, internalError()
	}

	return AuthLoginResponse{
		User: toUserDTO(user),
		Token: JwtAccessTokenDTO{
			AccessToken: token,
			ExpiresIn:   int(exp.Sub(now).Seconds()),
			SessionID:   s.ID,
			ExpiresAt:   exp,
		},
	}, nil
}

// セッションを失効させる。同じトークンは以後使えない。
func (u *AuthUsecase) Logout(ctx context.Context, p Principal) error {
	if p.SessionID == "" {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := u.sessions.Revoke(ctx, p.SessionID); err != nil {
		return internalError()
	}
	return nil
}

func (u *AuthUsecase) Me(ctx context.Context, userID int64) (UserDTO, error) {
	if userID <= 0 {
		return UserDTO{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	user, err := u.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && user == nil) {
		return UserDTO{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err != nil {
		return UserDTO{}, internalError()
	}
	if !user.IsActive {
		return UserDTO{}, NewHTTPError(http.StatusForbidden, "account disabled")
	}

	return toUserDTO(user), nil
}

// JWTの署名と期限を確認し、さらにサーバー側のセッションが生きているか見る
func (u *AuthUsecase) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	unauthorized := NewHTTPError(http.StatusUnauthorized, "unauthorized")

	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(u.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(u.clock.Now),
	)
	if err != nil || !token.Valid {
		return Principal{}, unauthorized
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 || claims.SessionID == "" {
		return Principal{}, unauthorized
	}

	s, err := u.sessions.Find(ctx, claims.SessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return Principal{}, unauthorized
	}
	if err != nil {
		return Principal{}, internalError()
	}
	if s.UserID != userID {
		return Principal{}, unauthorized
	}

	// ロールはセッション側を正とする
	return Principal{UserID: userID, Role: s.Role, SessionID: s.ID}, nil
}

// jwt発行
func (u *AuthUsecase) issueAccessToken(user *model.User, sessionID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(u.cfg.AccessTTL)

	claims := accessClaims{
		Role:      string(user.Role),
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := t.SignedString([]byte(u.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// model.UserをAPI返却用DTOに変換。
func toUserDTO(u *model.User) UserDTO {
	return UserDTO{
		ID:       u.ID,
		Email:    u.Email,
		Role:     string(u.Role),
		IsActive: u.IsActive,
	}
}
