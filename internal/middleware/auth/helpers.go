package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/healthcare_records/internal/tokens"
)

const (
	ctxClaims = "claims"
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get(echo.HeaderAuthorization))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func setUserContext(c echo.Context, claims *tokens.AccessClaims) {
	id, _ := claims.UserID()
	c.Set(ctxClaims, claims)
	c.Set(ctxUserID, id)
	c.Set(ctxRole, claims.Role)
}

// Claims returns the verified claims placed by RequireAuth, or nil.
func Claims(c echo.Context) *tokens.AccessClaims {
	v, _ := c.Get(ctxClaims).(*tokens.AccessClaims)
	return v
}

func UserID(c echo.Context) uint {
	v, _ := c.Get(ctxUserID).(uint)
	return v
}
