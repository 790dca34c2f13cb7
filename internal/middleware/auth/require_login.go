package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
	"github.com/Skotchmaster/healthcare_records/internal/logging"
	"github.com/Skotchmaster/healthcare_records/internal/tokens"
)

type Verifier interface {
	ParseAccess(raw string) (*tokens.AccessClaims, error)
}

// RequireAuth rejects requests without a valid bearer access token and
// exposes the claims to later handlers.
func RequireAuth(v Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := BearerToken(c.Request())
			if raw == "" {
				return apperr.ErrTokenInvalid
			}
			claims, err := v.ParseAccess(raw)
			if err != nil {
				logging.FromContext(c.Request().Context()).Debug("access_token_rejected", "error", err)
				return apperr.ErrTokenInvalid
			}

			setUserContext(c, claims)

			l := logging.FromContext(c.Request().Context()).With("user_id", claims.Subject, "role", claims.Role.String())
			c.SetRequest(c.Request().WithContext(logging.IntoContext(c.Request().Context(), l)))
			return next(c)
		}
	}
}
