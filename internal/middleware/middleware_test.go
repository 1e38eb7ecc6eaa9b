package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"printstudio/internal/domain/model"
	"printstudio/internal/middleware"
	"printstudio/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// =====================
// レスポンス確認用
// =====================

type mwErrorResponse struct {
	Error string `json:"error"`
}

type mwOKResponse struct {
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
}

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, token string) (usecase.Principal, error) {
	args := m.Called(ctx, token)
	p, _ := args.Get(0).(usecase.Principal)
	return p, args.Error(1)
}

// =====================
// helper
// =====================

func protected(e *echo.Echo, auth usecase.Authenticator) {
	e.GET("/protected", func(c echo.Context) error {
		p := c.Get(middleware.CtxPrincipalKey).(usecase.Principal)
		return c.JSON(http.StatusOK, mwOKResponse{
			UserID:    c.Get(middleware.CtxUserIDKey).(int64),
			Role:      c.Get(middleware.CtxUserRoleKey).(string),
			SessionID: p.SessionID,
		})
	}, middleware.AuthJWT(auth))
}

func runRequest(t *testing.T, e *echo.Echo, method string, path string, authHeader string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeMWError(t *testing.T, rec *httptest.ResponseRecorder) mwErrorResponse {
	t.Helper()
	var r mwErrorResponse
	_ = json.NewDecoder(rec.Body).Decode(&r)
	return r
}

// =====================
// AuthJWT
// =====================

// Authorizationなし => 401
func TestMiddleware_AuthJWT_Unauthorized_NoHeader(t *testing.T) {
	e := echo.New()
	auth := new(MockAuthenticator)
	protected(e, auth)

	rec := runRequest(t, e, http.MethodGet, "/protected", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeMWError(t, rec).Error)
	auth.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
}

// Bearer形式じゃない => 401
func TestMiddleware_AuthJWT_Unauthorized_BadScheme(t *testing.T) {
	e := echo.New()
	auth := new(MockAuthenticator)
	protected(e, auth)

	rec := runRequest(t, e, http.MethodGet, "/protected", "Token abc.def.ghi")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	auth.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
}

// 失効したセッション => 401
func TestMiddleware_AuthJWT_Unauthorized_Rejected(t *testing.T) {
	e := echo.New()
	auth := new(MockAuthenticator)
	auth.On("Authenticate", mock.Anything, "abc.def.ghi").
		Return(nil, usecase.NewHTTPError(http.StatusUnauthorized, "unauthorized"))
	protected(e, auth)

	rec := runRequest(t, e, http.MethodGet, "/protected", "Bearer abc.def.ghi")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeMWError(t, rec).Error)
}

// セッションストアが落ちている => 500 をそのまま返す
func TestMiddleware_AuthJWT_StoreFailure(t *testing.T) {
	e := echo.New()
	auth := new(MockAuthenticator)
	auth.On("Authenticate", mock.Anything, "abc.def.ghi").
		Return(nil, usecase.NewHTTPError(http.StatusInternalServerError, "internal error"))
	protected(e, auth)

	rec := runRequest(t, e, http.MethodGet, "/protected", "Bearer abc.def.ghi")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// 正常：ctxに値が入る
func TestMiddleware_AuthJWT_Success_SetsContext(t *testing.T) {
	e := echo.New()
	auth := new(MockAuthenticator)
	auth.On("Authenticate", mock.Anything, "good").
		Return(usecase.Principal{UserID: 123, Role: model.RoleUser, SessionID: "sess-9"}, nil)
	protected(e, auth)

	rec := runRequest(t, e, http.MethodGet, "/protected", "bearer good")

	require.Equal(t, http.StatusOK, rec.Code)
	var body mwOKResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, mwOKResponse{UserID: 123, Role: "USER", SessionID: "sess-9"}, body)
	auth.AssertExpectations(t)
}

// =====================
// AdminRoleGuard
// =====================

func guarded(role string) *httptest.ResponseRecorder {
	e := echo.New()
	e.GET("/admin", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if role != "" {
				c.Set(middleware.CtxUserRoleKey, role)
			}
			return next(c)
		}
	}, middleware.AdminRoleGuard())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	return rec
}

func TestMiddleware_AdminRoleGuard(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, guarded("").Code)
	assert.Equal(t, http.StatusForbidden, guarded("USER").Code)
	assert.Equal(t, http.StatusNoContent, guarded("ADMIN").Code)
}

// =====================
// RequestID / RequestLogger
// =====================

func TestMiddleware_RequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	e := echo.New()
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(zap.New(core)))
	e.GET("/ping", func(c echo.Context) error {
		c.Set(middleware.CtxUserIDKey, int64(7))
		return c.String(http.StatusOK, "pong")
	})

	rec := runRequest(t, e, http.MethodGet, "/ping", "")

	require.Equal(t, http.StatusOK, rec.Code)
	rid := rec.Header().Get(echo.HeaderXRequestID)
	assert.NotEmpty(t, rid)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, rid, fields["request_id"])
	assert.Equal(t, "/ping", fields["uri"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, int64(7), fields["user_id"])
}
