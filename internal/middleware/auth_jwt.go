package middleware

import (
	"net/http"
	"strings"

	"printstudio/internal/usecase"

	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey    = "user_id"   // int64
	CtxUserRoleKey  = "user_role" // string
	CtxPrincipalKey = "principal" // usecase.Principal
)

// bearerトークンを検証し、セッションが生きていればcontextに利用者を入れる。
func AuthJWT(auth usecase.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rawToken, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			p, err := auth.Authenticate(c.Request().Context(), rawToken)
			if err != nil {
				if he, ok := usecase.AsHTTPError(err); ok && he.Status >= http.StatusInternalServerError {
					return c.JSON(he.Status, errorJSON(he.Message))
				}
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			c.Set(CtxPrincipalKey, p)
			c.Set(CtxUserIDKey, p.UserID)
			c.Set(CtxUserRoleKey, string(p.Role))

			return next(c)
		}
	}
}

func bearerToken(authz string) (string, bool) {
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}
