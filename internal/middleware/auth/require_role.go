package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/healthcare_records/internal/authz"
	"github.com/Skotchmaster/healthcare_records/internal/logging"
	"github.com/Skotchmaster/healthcare_records/internal/role"
)

// RequireRole must run after RequireAuth.
func RequireRole(roles ...role.Role) echo.MiddlewareFunc {
	allowed := role.NewSet(roles...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := Claims(c)
			if err := authz.Authorize(claims, allowed); err != nil {
				if claims != nil {
					logging.FromContext(c.Request().Context()).Warn("forbidden",
						"role", claims.Role.String(),
						"path", c.Path(),
					)
				}
				return err
			}
			return next(c)
		}
	}
}

func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return RequireRole(role.Admin)(next)
}
