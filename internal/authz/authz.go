package authz

import (
	"github.com/Skotchmaster/healthcare_records/internal/apperr"
	"github.com/Skotchmaster/healthcare_records/internal/role"
	"github.com/Skotchmaster/healthcare_records/internal/tokens"
)

// Authorize is a membership test of the verified role against allowed. There
// is no hierarchy: admin is only allowed where it is listed.
func Authorize(claims *tokens.AccessClaims, allowed role.Set) error {
	if claims == nil {
		return apperr.ErrTokenInvalid
	}
	if !allowed.Has(claims.Role) {
		return apperr.ErrForbidden
	}
	return nil
}
