package handlers

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
	"github.com/Skotchmaster/healthcare_records/internal/middleware/auth"
	"github.com/Skotchmaster/healthcare_records/internal/repo"
)

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

func paramID(c echo.Context, name string) (uint, error) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return uint(n), nil
}

func queryInt(c echo.Context, name string) int {
	n, _ := strconv.Atoi(c.QueryParam(name))
	return n
}

func viewer(c echo.Context) repo.Viewer {
	v := repo.Viewer{ID: auth.UserID(c)}
	if claims := auth.Claims(c); claims != nil {
		v.Role = claims.Role
	}
	return v
}

func queryID(raw string) (uint, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validation("invalid id")
	}
	return uint(n), nil
}
